/*
DESCRIPTION
  segment.go provides insertion and extraction of JPEG comment segments, used
  to carry capture metadata within an image.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package jpeg provides a JPEG stream lexer and helpers for JPEG marker
// segments.
package jpeg

import (
	"encoding/binary"
	"errors"
)

// JPEG marker codes.
const (
	codeSOI = 0xd8 // Start of image.
	codeEOI = 0xd9 // End of image.
	codeSOS = 0xda // Start of scan.
	codeCOM = 0xfe // Comment.
)

// MaxComment is the largest comment payload a single segment can hold; the
// two byte segment length includes itself.
const MaxComment = 0xffff - 2

var soi = []byte{0xff, codeSOI}

var (
	ErrNotJPEG         = errors.New("not a JPEG image")
	ErrCommentTooLarge = errors.New("comment too large for segment")
	ErrNoComment       = errors.New("no comment segment")
)

// InsertComment returns a copy of img with a comment segment holding payload
// inserted directly after the start of image marker.
func InsertComment(img, payload []byte) ([]byte, error) {
	if len(img) < len(soi) || img[0] != 0xff || img[1] != codeSOI {
		return nil, ErrNotJPEG
	}
	if len(payload) > MaxComment {
		return nil, ErrCommentTooLarge
	}
	out := make([]byte, 0, len(img)+4+len(payload))
	out = append(out, soi...)
	out = append(out, 0xff, codeCOM)
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, payload...)
	return append(out, img[len(soi):]...), nil
}

// Comment returns the payload of the first comment segment found in the
// header of img, before the start of scan.
func Comment(img []byte) ([]byte, error) {
	if len(img) < len(soi) || img[0] != 0xff || img[1] != codeSOI {
		return nil, ErrNotJPEG
	}
	for i := len(soi); i+4 <= len(img); {
		if img[i] != 0xff {
			return nil, ErrNotJPEG
		}
		code := img[i+1]
		if code == codeSOS || code == codeEOI {
			break
		}
		n := int(binary.BigEndian.Uint16(img[i+2:]))
		if n < 2 || i+2+n > len(img) {
			return nil, ErrNotJPEG
		}
		if code == codeCOM {
			return img[i+4 : i+2+n], nil
		}
		i += 2 + n
	}
	return nil, ErrNoComment
}
