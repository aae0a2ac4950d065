package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"
)

const maxRequestSize = 16 << 20

// Serve reads newline-delimited Requests from r and writes one Response per
// line to w. Requests run concurrently; responses are written whole in the
// order they finish. Serve returns when r is exhausted or ctx is done, after
// in-flight requests have answered.
func (s *Service) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var (
		mu  sync.Mutex
		enc = json.NewEncoder(w)
		wg  sync.WaitGroup
	)
	write := func(resp Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			s.log.Error("writing response", zap.String("request_id", resp.ID), zap.Error(err))
		}
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxRequestSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping on signal")
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				write(Response{Error: &Error{Code: CodeInvalidArgument, Message: "malformed request: " + err.Error()}})
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				write(s.Dispatch(ctx, req))
			}()
		}
	}
}
