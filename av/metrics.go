package av

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opd-ai/roomcall/av/jitter"
	"github.com/sirupsen/logrus"
)

// PeerStats are the receive-side counters of one peer.
type PeerStats struct {
	Audio jitter.AudioStats
	Video jitter.VideoStats

	// Dropped counts frames rejected before reaching a buffer:
	// undecodable, oversized or otherwise malformed.
	Dropped uint64

	// LastFrame is the arrival time of the most recent frame.
	LastFrame time.Time
}

// LossPercent is the share of scheduled audio that was concealment.
func (s PeerStats) LossPercent() float64 {
	if s.Audio.Scheduled == 0 {
		return 0
	}
	return float64(s.Audio.Silence) / float64(s.Audio.Scheduled) * 100
}

// QualityLevel represents a peer's receive quality assessment.
type QualityLevel int

const (
	// QualityExcellent indicates no noticeable loss
	QualityExcellent QualityLevel = iota
	// QualityGood indicates minor concealment
	QualityGood
	// QualityFair indicates noticeable concealment
	QualityFair
	// QualityPoor indicates significant loss
	QualityPoor
	// QualityUnacceptable indicates the peer is effectively inaudible
	QualityUnacceptable
)

// String returns the string representation of QualityLevel.
func (q QualityLevel) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	case QualityUnacceptable:
		return "Unacceptable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(q))
	}
}

// QualityThresholds are loss percentages separating quality levels, plus
// the silence after which a peer is considered stalled.
type QualityThresholds struct {
	ExcellentLoss float64 // < 1%
	GoodLoss      float64 // < 3%
	FairLoss      float64 // < 8%
	PoorLoss      float64 // < 15%

	FrameTimeout time.Duration
}

// DefaultQualityThresholds returns the usual VoIP loss bands.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		ExcellentLoss: 1.0,
		GoodLoss:      3.0,
		FairLoss:      8.0,
		PoorLoss:      15.0,
		FrameTimeout:  2 * time.Second,
	}
}

// Assess rates stats at now.
func (t QualityThresholds) Assess(s PeerStats, now time.Time) QualityLevel {
	if !s.LastFrame.IsZero() && now.Sub(s.LastFrame) > t.FrameTimeout && s.Audio.Received > 0 {
		// Silence suppression also stops frames, so a stall only degrades.
		if q := t.assessLoss(s.LossPercent()); q < QualityPoor {
			return q + 1
		}
		return QualityPoor
	}
	return t.assessLoss(s.LossPercent())
}

func (t QualityThresholds) assessLoss(loss float64) QualityLevel {
	switch {
	case loss < t.ExcellentLoss:
		return QualityExcellent
	case loss < t.GoodLoss:
		return QualityGood
	case loss < t.FairLoss:
		return QualityFair
	case loss < t.PoorLoss:
		return QualityPoor
	default:
		return QualityUnacceptable
	}
}

// PeerReport is one line of a StatsReporter report.
type PeerReport struct {
	ID      string
	Quality QualityLevel
	Stats   PeerStats
}

// StatsReporter periodically logs per-peer receive quality.
type StatsReporter struct {
	source     func() []PeerState
	interval   time.Duration
	thresholds QualityThresholds
	tp         TimeProvider
	onReport   func([]PeerReport)
}

// NewStatsReporter creates a reporter over the controller's peers.
func NewStatsReporter(c *Controller, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		source:     c.Peers,
		interval:   interval,
		thresholds: DefaultQualityThresholds(),
		tp:         c.tp,
	}
}

// OnReport registers a callback receiving every report.
func (r *StatsReporter) OnReport(fn func([]PeerReport)) {
	r.onReport = fn
}

// Report builds one report.
func (r *StatsReporter) Report() []PeerReport {
	now := r.tp.Now()
	peers := r.source()
	out := make([]PeerReport, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerReport{ID: p.ID, Quality: r.thresholds.Assess(p.Stats, now), Stats: p.Stats})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run reports every interval until ctx is done.
func (r *StatsReporter) Run(ctx context.Context) {
	ticker := r.tp.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			report := r.Report()
			for _, p := range report {
				logrus.WithFields(logrus.Fields{
					"function":  "StatsReporter.Run",
					"peer":      p.ID,
					"quality":   p.Quality.String(),
					"loss_pct":  fmt.Sprintf("%.1f", p.Stats.LossPercent()),
					"late":      p.Stats.Audio.Late,
					"resyncs":   p.Stats.Audio.Resyncs + p.Stats.Video.Resyncs,
					"displayed": p.Stats.Video.Displayed,
				}).Info("Peer receive quality")
			}
			if r.onReport != nil {
				r.onReport(report)
			}
		}
	}
}
