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
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var (
	watchObject   string
	watchProperty string
	watchInterval time.Duration

	watchCOV          bool
	watchCOVLifetime  uint32
	watchCOVConfirmed bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a property for changes",
	Long: `Watch monitors a BACnet property for changes.

Two modes are available:
  - Polling: reads the property periodically and prints it when it changes.
    With --verbose every poll is printed.
  - COV: subscribes to change-of-value notifications and prints every
    notification that reports the property. The subscription is cancelled
    on exit.

Examples:
  # Poll present value every second
  edgeo-bacnet watch -d 1234 -O analog-input:1 -P present-value --interval 1s

  # Subscribe to COV notifications
  edgeo-bacnet watch -d 1234 -O analog-input:1 --cov

  # Confirmed COV notifications with a five minute lifetime
  edgeo-bacnet watch -d 1234 -O analog-input:1 --cov --cov-lifetime 300 --cov-confirmed`,

	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchObject, "object", "O", "", "Object type and instance (e.g., analog-input:1)")
	watchCmd.Flags().StringVarP(&watchProperty, "property", "P", "present-value", "Property identifier")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Polling interval")
	watchCmd.Flags().BoolVar(&watchCOV, "cov", false, "Use COV subscription instead of polling")
	watchCmd.Flags().Uint32Var(&watchCOVLifetime, "cov-lifetime", 0, "COV subscription lifetime in seconds (0 = indefinite)")
	watchCmd.Flags().BoolVar(&watchCOVConfirmed, "cov-confirmed", false, "Request confirmed COV notifications")

	watchCmd.MarkFlagRequired("object")
}

func runWatch(cmd *cobra.Command, args []string) error {
	id, err := targetDevice()
	if err != nil {
		return err
	}

	objectID, err := parseObjectIdentifier(watchObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}

	propID, err := parsePropertyIdentifier(watchProperty)
	if err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}

	if !watchCOV && watchInterval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(os.Stderr, "Watching %s.%s on device %d\n", objectID, propID, id)
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	f := NewFormatter(outputFmt)
	if watchCOV {
		return watchCOVNotifications(ctx, c, f, id, objectID, propID)
	}
	return pollProperty(ctx, c, f, id, objectID, propID)
}

// watchCOVNotifications subscribes to the object and prints the property from
// every notification until ctx ends, then cancels the subscription.
func watchCOVNotifications(ctx context.Context, c *client.Client, f *Formatter, id uint32, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier) error {
	var subOpts []client.SubscribeOption
	if watchCOVLifetime > 0 {
		subOpts = append(subOpts, client.WithSubscriptionLifetime(watchCOVLifetime))
	}
	if watchCOVConfirmed {
		subOpts = append(subOpts, client.WithConfirmedNotifications(true))
	}

	notifications := make(chan *bacnet.COVNotification, 16)
	handler := func(_ netip.AddrPort, n *bacnet.COVNotification) {
		select {
		case notifications <- n:
		default:
			logger.Warn("dropping cov notification", "object", n.Object.String())
		}
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout*3)
	pid, err := c.SubscribeCOV(subCtx, id, objectID, handler, subOpts...)
	cancel()
	if err != nil {
		return fmt.Errorf("subscribe cov: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Subscribed to COV (process ID %d)\n", pid)

	defer func() {
		unsubCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.UnsubscribeCOV(unsubCtx, pid); err != nil {
			logger.Warn("failed to cancel cov subscription", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-notifications:
			if value, ok := n.Value(propID); ok {
				outputWatchValue(f, time.Now(), n.Object, propID, value, true)
			}
		}
	}
}

func pollProperty(ctx context.Context, c *client.Client, f *Formatter, id uint32, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier) error {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	read := func() (bacnet.ValueSequence, error) {
		readCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ack, err := c.ReadProperty(readCtx, id, objectID, propID)
		if err != nil {
			return nil, err
		}
		return ack.Value, nil
	}

	value, err := read()
	if err != nil {
		return fmt.Errorf("initial read: %w", err)
	}
	outputWatchValue(f, time.Now(), objectID, propID, value, true)
	last := formatSequence(value)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			value, err := read()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("poll failed", "object", objectID.String(), "error", err)
				continue
			}

			current := formatSequence(value)
			changed := current != last
			if changed || verbose {
				outputWatchValue(f, time.Now(), objectID, propID, value, changed)
				last = current
			}
		}
	}
}

func outputWatchValue(f *Formatter, t time.Time, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier, value bacnet.ValueSequence, changed bool) {
	switch f.Format() {
	case FormatJSON:
		f.PrintJSON(map[string]any{
			"time":     t.Format(time.RFC3339Nano),
			"object":   objectID.String(),
			"property": propID.String(),
			"value":    jsonSequence(value),
			"changed":  changed,
		})
	case FormatCSV:
		f.Printf("%s,%s,%s,%s,%v\n",
			t.Format(time.RFC3339Nano), objectID, propID, formatSequence(value), changed)
	default:
		marker := " "
		if changed {
			marker = "*"
		}
		f.Printf("[%s] %s %s.%s = %s\n",
			t.Format("15:04:05.000"), marker, objectID, propID, formatSequence(value))
	}
}
