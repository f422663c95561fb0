package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/roomcall/av"
	"github.com/opd-ai/roomcall/config"
	"github.com/opd-ai/roomcall/device"
	"github.com/opd-ai/roomcall/gateway"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	url             string
	room            string
	identity        string
	callType        string
	peers           []string
	micRate         int
	speakerRate     int
	statsInterval   time.Duration
	settingsTimeout time.Duration
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join a room call until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			call, err := av.ParseCallType(opts.callType)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCall(ctx, global, opts, av.CallDescriptor{RoomID: opts.room, CallType: call})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "ws://127.0.0.1:3000/bridge", "Bridge websocket URL")
	flags.StringVar(&opts.room, "room", "", "Room id")
	flags.StringVar(&opts.identity, "identity", "", "Local participant identity")
	flags.StringVar(&opts.callType, "call", "voice", "Call type (voice or video)")
	flags.StringSliceVar(&opts.peers, "peer", nil, "Participants already joined")
	flags.IntVar(&opts.micRate, "mic-rate", 48000, "Microphone capture rate")
	flags.IntVar(&opts.speakerRate, "speaker-rate", 48000, "Speaker playback rate")
	flags.DurationVar(&opts.statsInterval, "stats-interval", 10*time.Second, "Receive quality report interval")
	flags.DurationVar(&opts.settingsTimeout, "settings-timeout", 10*time.Second, "How long to wait for media settings from the bridge")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}

func runCall(ctx context.Context, global *globalOptions, opts *runOptions, call av.CallDescriptor) error {
	client, err := gateway.Dial(ctx, gateway.Options{URL: opts.url})
	if err != nil {
		return err
	}
	defer client.Close()

	var sink av.AudioSink
	speaker, err := device.NewSpeaker(opts.speakerRate)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runCall",
			"error":    err.Error(),
		}).Warn("No playback device, received audio is discarded")
	} else {
		defer speaker.Close()
		sink = speaker
	}

	ctrl, err := av.NewController(av.Options{
		Sender: client,
		Audio:  device.NewMicrophone(opts.micRate),
		Video:  device.PatternCamera{},
		Sink:   sink,
		Observer: func(p av.PeerState) {
			logrus.WithFields(logrus.Fields{
				"function": "runCall",
				"peer":     p.ID,
				"talking":  p.Talking,
				"removed":  p.Removed,
			}).Debug("Peer state changed")
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.StopSession()

	if global.configPath != "" {
		loader := config.NewLoader(global.configPath, nil)
		snap, err := loader.Load()
		if err != nil {
			return err
		}
		if err := ctrl.ApplyConfig(snap); err != nil {
			return err
		}
		loader.Watch(func(s config.Snapshot) {
			if err := ctrl.ApplyConfig(s); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "runCall",
					"error":    err.Error(),
				}).Warn("Reloaded configuration rejected")
			}
		}, ctrl.ConfigLost)
	}

	bridgeErr := make(chan error, 1)
	go func() { bridgeErr <- client.Run(ctx, ctrl) }()
	go ctrl.Run(ctx)
	go av.NewStatsReporter(ctrl, opts.statsInterval).Run(ctx)

	if err := waitForSettings(ctx, ctrl, opts.settingsTimeout); err != nil {
		return err
	}
	if err := ctrl.StartSession(ctx, call, opts.peers, opts.identity); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	select {
	case <-ctx.Done():
		logrus.WithFields(logrus.Fields{
			"function": "runCall",
		}).Info("Leaving call")
		return nil
	case err := <-bridgeErr:
		if err == nil {
			err = errors.New("bridge closed the connection")
		}
		return err
	}
}

// waitForSettings blocks until the controller has media settings, from
// the file or from the bridge.
func waitForSettings(ctx context.Context, ctrl *av.Controller, timeout time.Duration) error {
	if _, ok := ctrl.Configuration(); ok {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("waiting for media settings: %w", av.ErrNoConfiguration)
		case <-ticker.C:
			if _, ok := ctrl.Configuration(); ok {
				return nil
			}
		}
	}
}
