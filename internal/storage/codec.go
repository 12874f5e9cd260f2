package storage

import (
	"fmt"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/klauspost/compress/zstd"
)

// Codec кодирует записи в фиксированную бинарную раскладку и, по желанию,
// сжимает мир zstd. Игроки не сжимаются: запись меньше 130 байт.
type Codec struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewPlainCodec возвращает кодек без сжатия; создание не может завершиться ошибкой.
func NewPlainCodec() *Codec {
	return &Codec{}
}

// NewCodec создаёт кодек. compress=false пишет мир как есть.
func NewCodec(compress bool) (*Codec, error) {
	c := NewPlainCodec()
	if !compress {
		return c, nil
	}

	var err error
	c.compressor, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	c.decompressor, err = zstd.NewReader(nil)
	if err != nil {
		c.compressor.Close()
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	return c, nil
}

func (c *Codec) EncodeWorld(w *game.World) ([]byte, error) {
	data, err := w.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if c.compressor != nil {
		data = c.compressor.EncodeAll(data, make([]byte, 0, len(data)/4))
	}
	return data, nil
}

func (c *Codec) DecodeWorld(data []byte) (*game.World, error) {
	if c.decompressor != nil {
		raw, err := c.decompressor.DecodeAll(data, make([]byte, 0, game.WorldSize))
		if err != nil {
			return nil, fmt.Errorf("decompression failed: %w", err)
		}
		data = raw
	}
	w := &game.World{}
	if err := w.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return w, nil
}

func (c *Codec) EncodePlayer(p *game.PlayerState) ([]byte, error) {
	return p.MarshalBinary()
}

func (c *Codec) DecodePlayer(data []byte) (*game.PlayerState, error) {
	p := &game.PlayerState{}
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Codec) Close() {
	if c.compressor != nil {
		c.compressor.Close()
	}
	if c.decompressor != nil {
		c.decompressor.Close()
	}
}
