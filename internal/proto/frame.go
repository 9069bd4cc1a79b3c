// Package proto implements the relay's wire framing.
//
// Every unit in both directions is a frame:
//
//	[Length (4 bytes, big-endian)][Payload (Length bytes, UTF-8)]
//
// A zero-length frame is a valid unit; the relay treats it as the peer closing.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// DefaultMaxFrameSize bounds a frame payload when no limit is configured (64 KiB).
	DefaultMaxFrameSize = 64 * 1024
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrInvalidUTF8   = errors.New("frame payload is not valid UTF-8")
)

// WriteFrame writes payload as a single frame with one Write call.
func WriteFrame(w io.Writer, payload []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame and returns its payload.
// A clean EOF before the header yields io.EOF; a frame cut short yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteText frames text.
func WriteText(w io.Writer, text string, maxSize int) error {
	return WriteFrame(w, []byte(text), maxSize)
}

// ReadText reads one frame and decodes it as UTF-8 text.
func ReadText(r io.Reader, maxSize int) (string, error) {
	payload, err := ReadFrame(r, maxSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(payload) {
		return "", ErrInvalidUTF8
	}
	return string(payload), nil
}
