package engine

import (
	"fmt"
)

// deliver is the single consumer of sess.queue. It writes each command to the
// shell's stdin in order and gives up on the first failure; nothing is retried.
func (s *Supervisor) deliver(sess *session) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("session", sess.id).Msg("Delivery worker panicked")
			s.end(sess, ReasonWriteFailed, "[!] Input worker crashed")
		}
	}()

	for {
		cmd, ok := sess.queue.Pop()
		if !ok {
			return
		}

		select {
		case <-sess.proc.Done():
			s.log.Warn().Str("session", sess.id).Msg("Shell exited before write")
			s.end(sess, ReasonWriteFailed, "[!] Device shell closed")
			return
		default:
		}

		if _, err := sess.proc.Write([]byte(cmd + "\n")); err != nil {
			s.log.Warn().Err(err).Str("session", sess.id).Msg("Write to shell failed")
			s.end(sess, ReasonWriteFailed, fmt.Sprintf("[!] Write failed: %v", err))
			return
		}
		s.log.Trace().Str("cmd", cmd).Msg("Delivered")
	}
}
