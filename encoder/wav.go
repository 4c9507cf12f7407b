package encoder

import "encoding/binary"

const wavHeaderSize = 44

// WavEncoder writes a PCM16 mono WAV container. The header is patched
// with the final sizes on Close.
type WavEncoder struct {
	buf         []byte
	totalFrames uint64
	closed      bool
}

func NewWav() *WavEncoder {
	e := &WavEncoder{buf: make([]byte, wavHeaderSize)}
	return e
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	for _, s := range block {
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(s))
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	dataSize := len(e.buf) - wavHeaderSize
	b := e.buf
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], uint32(wavHeaderSize-8+dataSize))
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(b[22:24], Channels)
	binary.LittleEndian.PutUint32(b[24:28], SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], SampleRate*Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(b[32:34], Channels*BitsPerSample/8) // block align
	binary.LittleEndian.PutUint16(b[34:36], BitsPerSample)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], uint32(dataSize))
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	return e.buf
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}
