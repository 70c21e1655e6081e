// Package usblog implements the USB CDC-ACM debug log queue from
// original_source/debug_log/debug_log.c: formatted log lines are queued
// into a fixed-size ring buffer (debug_log_print) and drained one at a time
// to a CDC-ACM-like transport whenever the port is open and the previous
// write has completed (debug_log_process / cdc_acm_user_ev_handler's
// TX_DONE case), in place of the reference firmware's app_usbd_cdc_acm
// stack.
package usblog

import "fmt"

// MaxLogSize and MaxLogsToPrint are MAX_LOG_SIZE/MAX_logs_to_print: each
// queued line is truncated to MaxLogSize bytes, and the ring has
// MaxLogsToPrint slots. Queuing the MaxLogsToPrint-th undrained line wraps
// the pending count to zero, so the lines queued until then are not drained.
const (
	MaxLogSize     = 64
	MaxLogsToPrint = 64
)

// Writer is the CDC-ACM transport this package drains to
// (app_usbd_cdc_acm_write). Completion is reported asynchronously via
// NotifyTxDone, exactly like the original's TX_DONE event, not a return
// value from Write.
type Writer interface {
	Write(data []byte)
}

// Logger is the ring buffer plus the USB port/transfer state machine
// (debug_log's static queue and port_open/log_in_progress flags).
type Logger struct {
	queue [MaxLogsToPrint][MaxLogSize]byte
	size  [MaxLogsToPrint]int

	loadIdx  int
	printIdx int
	pending  int

	portOpen   bool
	inProgress bool
}

// New creates an empty Logger.
func New() *Logger {
	return &Logger{}
}

// Printf formats and enqueues one log line (debug_log_print), truncating to
// MaxLogSize bytes. If this line makes MaxLogsToPrint undrained lines, the
// pending count wraps to zero and the lines already queued are not drained;
// later lines overwrite the ring slot by slot. This mirrors the reference implementation's unconditional
// logs_to_print wraparound at MAX_logs_to_print (the "needs to change this"
// comment there, which this port does not change either).
func (l *Logger) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	n := copy(l.queue[l.loadIdx][:], line)
	l.size[l.loadIdx] = n

	l.pending++
	if l.pending == MaxLogsToPrint {
		l.pending = 0
	}

	l.loadIdx++
	if l.loadIdx == MaxLogsToPrint {
		l.loadIdx = 0
	}
}

// SetPortOpen reports a CDC-ACM port open/close event
// (APP_USBD_CDC_ACM_USER_EVT_PORT_OPEN/_CLOSE).
func (l *Logger) SetPortOpen(open bool) {
	l.portOpen = open
}

// NotifyTxDone reports that the in-flight write completed
// (APP_USBD_CDC_ACM_USER_EVT_TX_DONE), advancing the drain cursor.
func (l *Logger) NotifyTxDone() {
	l.printIdx++
	if l.printIdx == MaxLogsToPrint {
		l.printIdx = 0
	}
	if l.pending > 0 {
		l.pending--
	}
	l.inProgress = false
}

// Process drains at most one pending line to w if the port is open and no
// write is already in flight (debug_log_process). The caller must call
// NotifyTxDone once w has finished the transfer before the next pending
// line is drained.
func (l *Logger) Process(w Writer) {
	if l.inProgress || !l.portOpen || l.pending == 0 {
		return
	}
	n := l.size[l.printIdx]
	w.Write(l.queue[l.printIdx][:n])
	l.inProgress = true
}
