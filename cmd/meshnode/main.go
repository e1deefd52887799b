// Command meshnode opens an mnet transport from a TOML config file, wires
// up its devices and an mrpc ping server, and serves Prometheus metrics —
// the running-process counterpart to the library packages, grounded on the
// teacher's core/main.go startup sequence (banner, config load, server
// construction, signal-driven graceful shutdown).
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshnet/mnet/internal/meshconfig"
	"github.com/meshnet/mnet/internal/meshlog"
	"github.com/meshnet/mnet/internal/meshmetrics"
	"github.com/meshnet/mnet/mnet"
	"github.com/meshnet/mnet/mrpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	meshlog.Section("mnet mesh node " + version)

	settings := meshconfig.Global
	log := meshlog.New(meshlog.Config{Level: settings.LogLevel, FilePath: settings.LogPath, Console: true})
	defer log.Sync()

	log.Infof("hostname=%s port=%d route=%v routeTime=%s retransmitTime=%s dropTime=%s",
		settings.Transport.Hostname, settings.Transport.Port, settings.Transport.RouteEnabled(),
		settings.Transport.RouteTime, settings.Transport.RetransmitTime, settings.Transport.DropTime)

	metrics := meshmetrics.New(string(settings.Transport.Hostname))
	transport := mnet.NewTransport(settings.Transport, mnet.WithLogger(log), mnet.WithMetrics(metrics))

	if len(settings.Devices) == 0 {
		log.Warnf("no devices configured; node will only deliver to itself")
	}
	for _, dc := range settings.Devices {
		if err := registerConfiguredDevice(transport, dc); err != nil {
			log.Errorf("failed to register device %s: %v", dc.Handle, err)
		} else {
			log.Infof("registered device %s (%s)", dc.Handle, dc.Kind)
		}
	}

	pingServer, err := mrpc.NewServer(transport, 1, false, nil, mrpc.WithLogger(log))
	if err != nil {
		log.Errorf("failed to start ping server: %v", err)
	} else {
		pingServer.DeclareFunction("ping", nil, []mrpc.Param{{Name: "reply", Kinds: []mrpc.Kind{mrpc.KindString}}})
		pingServer.SetHandler("ping", func(_ interface{}, host string, args []interface{}) ([]interface{}, error) {
			log.Infof("ping from %s", host)
			return []interface{}{"pong"}, nil
		})
		defer pingServer.Destroy()
	}

	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Warnf("received signal %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	_ = transport.Close()
	log.Infof("shutdown complete")
}

func registerConfiguredDevice(t *mnet.Transport, dc meshconfig.DeviceConfig) error {
	mtu := 1500
	switch dc.Kind {
	case "tunnel":
		remote, err := resolveUDPAddr(dc.Remote)
		if err != nil {
			return err
		}
		dev, err := mnet.NewTunnelDevice(dc.Listen, remote, mtu)
		if err != nil {
			return err
		}
		return t.RegisterDevice(dc.Handle, dev)
	default:
		dev, err := mnet.NewRadioDevice(dc.Listen, mtu)
		if err != nil {
			return err
		}
		return t.RegisterDevice(dc.Handle, dev)
	}
}

func resolveUDPAddr(s string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", s)
}
