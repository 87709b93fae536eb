package fetcher

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// StreamJSON decodes either a JSON array of objects or newline-delimited
// objects (the two shapes dataset exports come in) and sends each element
// to the returned channel. Both channels are closed when decoding ends.
func StreamJSON(ctx context.Context, r io.Reader) (<-chan json.RawMessage, <-chan error) {
	outCh := make(chan json.RawMessage, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		first, err := peekNonSpace(br)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "json: read")
			return
		}

		dec := json.NewDecoder(br)
		if first == '[' {
			if _, err := dec.Token(); err != nil {
				errCh <- eris.Wrap(err, "json: read opening bracket")
				return
			}
		}

		for n := 0; ; n++ {
			if first == '[' && !dec.More() {
				break
			}
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "json: cancelled")
				return
			}
			var item json.RawMessage
			if err := dec.Decode(&item); err != nil {
				if first != '[' && errors.Is(err, io.EOF) {
					return
				}
				errCh <- eris.Wrapf(err, "json: decode element %d", n)
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: cancelled")
				return
			}
		}

		if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
			errCh <- eris.Wrap(err, "json: read closing bracket")
		}
	}()

	return outCh, errCh
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
