/*
DESCRIPTION
  lex.go provides Lex, which splits a stream of concatenated JPEG images, such
  as raspistill output in signal mode or an MJPEG file, into whole images.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package jpeg

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/logging"
)

// Log is used by Lex if not nil.
var Log logging.Logger

// Initial capacity of an image read by Lex.
const imageCap = 64 << 10

// Lex reads images from src and writes each whole image to dst in a single
// write, no more often than once per delay. An image holding another, such as
// an EXIF thumbnail, is written with the image it is embedded in.
//
// Lex returns io.EOF if src ends between images and io.ErrUnexpectedEOF if it
// ends part way through one.
func Lex(dst io.Writer, src io.Reader, delay time.Duration) error {
	p := newPacer(delay)
	defer p.stop()

	r := bufio.NewReader(src)
	for {
		img, err := readImage(r)
		if err != nil {
			return err
		}
		p.wait()
		if Log != nil {
			Log.Debug("lexed image", "len", len(img))
		}
		_, err = dst.Write(img)
		if err != nil {
			return err
		}
	}
}

// readImage reads from the SOI marker starting an image to the EOI marker
// that closes it.
func readImage(r *bufio.Reader) ([]byte, error) {
	img := make([]byte, len(soi), imageCap)
	_, err := io.ReadFull(r, img)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(img, soi) {
		return nil, fmt.Errorf("lexer: not at start of image: %#v", img)
	}

	for depth := 1; depth > 0; {
		seg, err := r.ReadSlice(0xff)
		img = append(img, seg...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return nil, truncated(err)
		}

		// Leave any byte that is not SOI or EOI for the next slice, since it
		// may itself be a marker prefix.
		code, err := r.Peek(1)
		if err != nil {
			return nil, truncated(err)
		}
		switch code[0] {
		case codeSOI:
			depth++
		case codeEOI:
			depth--
		default:
			continue
		}
		r.ReadByte()
		img = append(img, code[0])
	}
	return img, nil
}

func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// pacer limits the rate of writes. A zero pacer does not wait.
type pacer struct {
	t *time.Ticker
}

func newPacer(d time.Duration) pacer {
	if d <= 0 {
		return pacer{}
	}
	return pacer{t: time.NewTicker(d)}
}

func (p pacer) wait() {
	if p.t != nil {
		<-p.t.C
	}
}

func (p pacer) stop() {
	if p.t != nil {
		p.t.Stop()
	}
}
