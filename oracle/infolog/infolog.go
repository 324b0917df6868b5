// Package infolog records FlightStatusInfo broadcasts. Nothing that happens
// here may affect registration or response submission.
package infolog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/metrics"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type Sink interface {
	Record(info types.StatusInfo) error
}

// LogSink writes each broadcast as a structured log line.
type LogSink struct{}

func (LogSink) Record(info types.StatusInfo) error {
	l := log.With("event", types.EventFlightStatusInfo)
	l.Info().
		Str("airline", info.Airline.Hex()).
		Str("flight", info.Flight).
		Str("timestamp", info.Timestamp.String()).
		Str("status", info.Status.String()).
		Msg(types.EventFlightStatusInfo)
	return nil
}

type Forwarder struct {
	sink Sink
}

func NewForwarder(sink Sink) *Forwarder {
	if sink == nil {
		sink = LogSink{}
	}
	return &Forwarder{sink: sink}
}

// Run forwards status-info events until ctx is done or events is closed.
func (f *Forwarder) Run(ctx context.Context, events <-chan ledger.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := f.Forward(ev); err != nil {
				log.Warnf("%s not recorded: %v", types.EventFlightStatusInfo, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Forward decodes one event and hands it to the sink. A panicking sink is
// reported as an error.
func (f *Forwarder) Forward(ev ledger.Event) (err error) {
	if ev.Err != nil {
		return errors.Wrap(types.ErrMalformedEvent, ev.Err.Error())
	}

	info, err := types.ParseStatusInfo(ev.Fields)
	if err != nil {
		return err
	}
	metrics.Incr(metrics.StatusInfoReceived)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("sink panicked: %v", r)
		}
	}()

	return f.sink.Record(info)
}
