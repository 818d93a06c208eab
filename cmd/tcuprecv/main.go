// Command tcuprecv reassembles a file received over UDP from a tcup
// sender, in order, using the out-of-order holding buffer in package
// receiver.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zackxzhang/tcup/datagram"
	"github.com/zackxzhang/tcup/filestore"
	"github.com/zackxzhang/tcup/metrics"
	"github.com/zackxzhang/tcup/receiver"
)

var flags struct {
	file        string
	host        string
	recvPort    int
	sendPort    int
	clientHost  string
	clientPort  int
	obufferSize int
	ibufferSize int
	windowSize  int
	metricsAddr string
	logLevel    string
	configFile  string
}

func main() {
	cmd := newCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tcuprecv",
		Short:        "Reassemble a file received over UDP from a tcup sender",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecv(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "file to write the received stream to")
	f.StringVarP(&flags.host, "host", "a", "0.0.0.0", "local bind address")
	f.IntVarP(&flags.recvPort, "recv-port", "i", 0, "local UDP port for incoming segments")
	f.IntVarP(&flags.sendPort, "send-port", "o", 0, "local UDP port for outgoing acks")
	f.StringVarP(&flags.clientHost, "client-host", "S", "", "sender's address")
	f.IntVarP(&flags.clientPort, "client-port", "s", 0, "sender's recv port")
	f.IntVarP(&flags.obufferSize, "obuffer-size", "b", 2048, "outgoing ack chunk size (unused by acks, kept for flag-set parity)")
	f.IntVarP(&flags.ibufferSize, "ibuffer-size", "B", 2048, "incoming datagram read size")
	f.IntVarP(&flags.windowSize, "window-size", "w", 4096, "reassembly buffer capacity, in bytes")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "bind address for a Prometheus /metrics endpoint (empty disables it)")
	f.StringVar(&flags.logLevel, "log-level", "info", "debug|info|warn|error")
	f.StringVar(&flags.configFile, "config", "", "optional TOML file providing defaults for the flags above")

	return cmd
}

func runRecv(cmd *cobra.Command) error {
	if flags.configFile != "" {
		conf, err := loadConfigRepr(flags.configFile)
		if err != nil {
			return err
		}
		applyConfigDefaults(cmd, conf)
	}

	log := newLogger(flags.logLevel)

	if flags.file == "" {
		return errors.New("--file is required")
	}
	if flags.clientHost == "" || flags.clientPort == 0 {
		return errors.New("--client-host and --client-port are required")
	}

	writer, err := filestore.CreateWriter(flags.file)
	if err != nil {
		return err
	}
	defer writer.Close()

	sendAddr := fmt.Sprintf("%s:%d", flags.host, flags.sendPort)
	recvAddr := fmt.Sprintf("%s:%d", flags.host, flags.recvPort)
	peerAddr := fmt.Sprintf("%s:%d", flags.clientHost, flags.clientPort)
	conn, err := datagram.DialUDP(sendAddr, recvAddr, peerAddr, flags.ibufferSize)
	if err != nil {
		return err
	}
	defer conn.Close()

	var mx *metrics.Set
	if flags.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		mx = metrics.NewSet(reg, "receiver")
		serveMetrics(log, flags.metricsAddr, reg)
	}

	rcv := receiver.New(receiver.Config{
		SrcPort:     uint16(flags.recvPort),
		DstPort:     uint16(flags.clientPort),
		IBufferSize: flags.ibufferSize,
		WindowSize:  flags.windowSize,
	}, conn, writer, receiver.WithLogger(log), receiver.WithMetrics(mx))

	log.WithFields(logrus.Fields{
		"file": flags.file,
		"peer": peerAddr,
	}).Info("tcuprecv: waiting for transfer")
	return rcv.Run()
}

func applyConfigDefaults(cmd *cobra.Command, conf *configRepr) {
	f := cmd.Flags()
	setIfUnset(f, "file", conf.File != "", func() { flags.file = conf.File })
	setIfUnset(f, "host", conf.Host != "", func() { flags.host = conf.Host })
	setIfUnset(f, "recv-port", conf.RecvPort != 0, func() { flags.recvPort = conf.RecvPort })
	setIfUnset(f, "send-port", conf.SendPort != 0, func() { flags.sendPort = conf.SendPort })
	setIfUnset(f, "client-host", conf.ClientHost != "", func() { flags.clientHost = conf.ClientHost })
	setIfUnset(f, "client-port", conf.ClientPort != 0, func() { flags.clientPort = conf.ClientPort })
	setIfUnset(f, "obuffer-size", conf.OBufferSize != 0, func() { flags.obufferSize = conf.OBufferSize })
	setIfUnset(f, "ibuffer-size", conf.IBufferSize != 0, func() { flags.ibufferSize = conf.IBufferSize })
	setIfUnset(f, "window-size", conf.WindowSize != 0, func() { flags.windowSize = conf.WindowSize })
	setIfUnset(f, "metrics-addr", conf.MetricsAddr != "", func() { flags.metricsAddr = conf.MetricsAddr })
	setIfUnset(f, "log-level", conf.LogLevel != "", func() { flags.logLevel = conf.LogLevel })
}

func setIfUnset(f interface{ Changed(string) bool }, name string, have bool, apply func()) {
	if have && !f.Changed(name) {
		apply()
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func serveMetrics(log logrus.FieldLogger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("tcuprecv: metrics server stopped")
		}
	}()
}
