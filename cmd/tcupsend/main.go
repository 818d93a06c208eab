// Command tcupsend streams a file to a tcup receiver over UDP, reliably
// and in order, using the sliding-window / fast-retransmit / adaptive-
// timeout engine in package sender.
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
	"github.com/zackxzhang/tcup/sender"
)

var flags struct {
	file        string
	host        string
	recvPort    int
	sendPort    int
	serverHost  string
	serverPort  int
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
		Use:          "tcupsend",
		Short:        "Stream a file to a tcup receiver over UDP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "file to send")
	f.StringVarP(&flags.host, "host", "a", "0.0.0.0", "local bind address")
	f.IntVarP(&flags.recvPort, "recv-port", "i", 0, "local UDP port for incoming acks")
	f.IntVarP(&flags.sendPort, "send-port", "o", 0, "local UDP port for outgoing segments")
	f.StringVarP(&flags.serverHost, "server-host", "S", "", "receiver's address")
	f.IntVarP(&flags.serverPort, "server-port", "s", 0, "receiver's recv port")
	f.IntVarP(&flags.obufferSize, "obuffer-size", "b", 64, "outgoing payload chunk size")
	f.IntVarP(&flags.ibufferSize, "ibuffer-size", "B", 2048, "incoming datagram read size")
	f.IntVarP(&flags.windowSize, "window-size", "w", 4096, "outstanding-bytes window")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "bind address for a Prometheus /metrics endpoint (empty disables it)")
	f.StringVar(&flags.logLevel, "log-level", "info", "debug|info|warn|error")
	f.StringVar(&flags.configFile, "config", "", "optional TOML file providing defaults for the flags above")

	return cmd
}

func runSend(cmd *cobra.Command) error {
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
	if flags.serverHost == "" || flags.serverPort == 0 {
		return errors.New("--server-host and --server-port are required")
	}

	reader, err := filestore.OpenReader(flags.file)
	if err != nil {
		return err
	}
	defer reader.Close()

	sendAddr := fmt.Sprintf("%s:%d", flags.host, flags.sendPort)
	recvAddr := fmt.Sprintf("%s:%d", flags.host, flags.recvPort)
	peerAddr := fmt.Sprintf("%s:%d", flags.serverHost, flags.serverPort)
	conn, err := datagram.DialUDP(sendAddr, recvAddr, peerAddr, flags.ibufferSize)
	if err != nil {
		return err
	}
	defer conn.Close()

	var mx *metrics.Set
	if flags.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		mx = metrics.NewSet(reg, "sender")
		serveMetrics(log, flags.metricsAddr, reg)
	}

	snd := sender.New(sender.Config{
		SrcPort:     uint16(flags.sendPort),
		DstPort:     uint16(flags.serverPort),
		OBufferSize: flags.obufferSize,
		WindowSize:  uint32(flags.windowSize),
	}, conn, reader, sender.WithLogger(log), sender.WithMetrics(mx))

	log.WithFields(logrus.Fields{
		"file": flags.file,
		"peer": peerAddr,
	}).Info("tcupsend: starting transfer")
	return snd.Run()
}

func applyConfigDefaults(cmd *cobra.Command, conf *configRepr) {
	f := cmd.Flags()
	setIfUnset(f, "file", conf.File != "", func() { flags.file = conf.File })
	setIfUnset(f, "host", conf.Host != "", func() { flags.host = conf.Host })
	setIfUnset(f, "recv-port", conf.RecvPort != 0, func() { flags.recvPort = conf.RecvPort })
	setIfUnset(f, "send-port", conf.SendPort != 0, func() { flags.sendPort = conf.SendPort })
	setIfUnset(f, "server-host", conf.ServerHost != "", func() { flags.serverHost = conf.ServerHost })
	setIfUnset(f, "server-port", conf.ServerPort != 0, func() { flags.serverPort = conf.ServerPort })
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
			log.WithError(err).Error("tcupsend: metrics server stopped")
		}
	}()
}
