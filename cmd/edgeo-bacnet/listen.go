// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var (
	listenMetricsAddr string
	listenAsDevice    int64
	listenVendorID    uint16
	listenAnnounce    bool
	listenStatsEvery  time.Duration
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Log unconfirmed BACnet traffic and serve metrics",
	Long: `Listen binds the BACnet/IP port and logs every unconfirmed service request
it receives. With --as-device it also answers Who-Is for that device instance.
With --metrics-addr the client counters are served in Prometheus format.

Examples:
  # Log traffic on the standard port
  edgeo-bacnet listen --local 0.0.0.0:47808

  # Act as device 4000 and expose metrics
  edgeo-bacnet listen --local 0.0.0.0:47808 --as-device 4000 --announce --metrics-addr :9108`,

	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9108)")
	listenCmd.Flags().Int64Var(&listenAsDevice, "as-device", -1, "Answer Who-Is as this device instance (-1 disables)")
	listenCmd.Flags().Uint16Var(&listenVendorID, "vendor", 0, "Vendor identifier announced in I-Am")
	listenCmd.Flags().BoolVar(&listenAnnounce, "announce", false, "Broadcast an I-Am on start (requires --as-device)")
	listenCmd.Flags().DurationVar(&listenStatsEvery, "stats-interval", 0, "Log a metrics summary at this interval (0 disables)")
}

func runListen(cmd *cobra.Command, args []string) error {
	var opts []client.Option
	if listenAsDevice >= 0 {
		if listenAsDevice > bacnet.MaxInstance {
			return fmt.Errorf("device instance %d out of range", listenAsDevice)
		}
		opts = append(opts,
			client.WithDeviceID(uint32(listenAsDevice)),
			client.WithVendorID(listenVendorID),
		)
	} else if listenAnnounce {
		return fmt.Errorf("--announce requires --as-device")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := connectClient(ctx, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	c.OnUnconfirmed(logUnconfirmed)
	logger.Info("listening", "address", c.LocalAddr().String())

	if listenAnnounce {
		iam := bacnet.IAm{
			Device:        bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, uint32(listenAsDevice)),
			MaxAPDULength: bacnet.MaxAPDULength,
			Segmentation:  bacnet.SegmentationNone,
			VendorID:      listenVendorID,
		}
		if err := c.Broadcast(ctx, bacnet.ServiceIAm, &iam); err != nil {
			logger.Warn("announce failed", "error", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if listenMetricsAddr != "" {
		srv := newMetricsServer(listenMetricsAddr, c.Metrics())
		g.Go(func() error {
			logger.Info("serving metrics", "address", listenMetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if listenStatsEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(listenStatsEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					logStats(c.Metrics().Snapshot())
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// newMetricsServer serves the client metrics plus the Go runtime collectors
func newMetricsServer(addr string, m *client.Metrics) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		client.NewCollector(m, "edgeo"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func logUnconfirmed(src netip.AddrPort, choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage) {
	attrs := []any{slog.String("from", src.String()), slog.String("service", choice.String())}

	switch m := msg.(type) {
	case *bacnet.WhoIs:
		attrs = append(attrs,
			slog.Uint64("low", uint64(m.DeviceInstanceLow)),
			slog.Uint64("high", uint64(m.DeviceInstanceHigh)),
		)
	case *bacnet.IAm:
		attrs = append(attrs,
			slog.String("device", m.Device.String()),
			slog.Uint64("vendor_id", uint64(m.VendorID)),
			slog.Uint64("max_apdu", uint64(m.MaxAPDULength)),
			slog.String("segmentation", m.Segmentation.String()),
		)
	case *bacnet.WhoHas:
		if m.Object != nil {
			attrs = append(attrs, slog.String("object", m.Object.String()))
		} else {
			attrs = append(attrs, slog.String("object_name", m.ObjectName))
		}
	case *bacnet.COVNotification:
		attrs = append(attrs,
			slog.String("device", m.InitiatingDevice.String()),
			slog.String("object", m.Object.String()),
			slog.Uint64("time_remaining", uint64(m.TimeRemaining)),
		)
		for _, pv := range m.Values {
			attrs = append(attrs, slog.String(pv.Property.String(), formatSequence(pv.Value)))
		}
	}

	logger.Info("unconfirmed request", attrs...)
}

func logStats(s client.MetricsSnapshot) {
	logger.Info("metrics",
		slog.Int64("frames_received", s.FramesReceived),
		slog.Int64("frames_dropped", s.FramesDropped),
		slog.Int64("frames_ignored", s.FramesIgnored),
		slog.Int64("iam_received", s.IAmReceived),
		slog.Int64("devices_discovered", s.DevicesDiscovered),
		slog.Int64("cov_notifications", s.COVNotifications),
	)
}
