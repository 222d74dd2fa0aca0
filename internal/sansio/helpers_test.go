package sansio_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossyrian/rgssad/internal/rgss"
	"github.com/ossyrian/rgssad/internal/sansio"
)

type entry struct {
	name string
	data []byte
}

type entry3 struct {
	name string
	key  uint32
	data []byte
}

func testEntries() []entry {
	return []entry{
		{name: "Data\\Actors.rvdata", data: []byte("actor table contents")},
		{name: "Data\\Empty.rvdata", data: []byte{}},
		{name: "Graphics\\Pictures\\title.png", data: pattern(1000)},
		{name: "Audio\\BGM\\テーマ.ogg", data: pattern(7)},
	}
}

func testEntries3() []entry3 {
	return []entry3{
		{name: "Data\\Map001.rvdata2", key: 0x1234ABCD, data: pattern(333)},
		{name: "Data\\Empty.rvdata2", key: 0x00000001, data: []byte{}},
		{name: "Graphics\\Titles1\\Book.png", key: 0xCAFEBABE, data: pattern(4096 + 3)},
		{name: "Audio\\SE\\Bell1.ogg", key: 0x0BADF00D, data: []byte("bell")},
	}
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + i/251)
	}
	return p
}

// referenceArchive encodes a version 1 archive without the state machines.
func referenceArchive(entries []entry) []byte {
	out := append([]byte("RGSSAD\x00"), 1)
	key := uint32(0xDEADCAFE)
	next := func() uint32 {
		k := key
		key = key*7 + 3
		return k
	}
	for _, e := range entries {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.name))^next())
		for i := 0; i < len(e.name); i++ {
			out = append(out, e.name[i]^byte(next()))
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.data))^next())
		dataKey := key
		for i, b := range e.data {
			out = append(out, b^byte(dataKey>>(8*(i%4))))
			if i%4 == 3 {
				dataKey = dataKey*7 + 3
			}
		}
	}
	return out
}

// referenceArchive3 encodes a version 3 archive without the state machines.
func referenceArchive3(seed uint32, entries []entry3) []byte {
	key := seed*9 + 3
	out := append([]byte("RGSSAD\x00"), 3)
	out = binary.LittleEndian.AppendUint32(out, seed)

	offset := uint32(12 + 16)
	for _, e := range entries {
		offset += uint32(16 + len(e.name))
	}
	for _, e := range entries {
		out = binary.LittleEndian.AppendUint32(out, offset^key)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.data))^key)
		out = binary.LittleEndian.AppendUint32(out, e.key^key)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.name))^key)
		for i := 0; i < len(e.name); i++ {
			out = append(out, e.name[i]^byte(key>>(8*(i%4))))
		}
		offset += uint32(len(e.data))
	}
	for range 4 {
		out = binary.LittleEndian.AppendUint32(out, key)
	}
	for _, e := range entries {
		dataKey := e.key
		for i, b := range e.data {
			out = append(out, b^byte(dataKey>>(8*(i%4))))
			if i%4 == 3 {
				dataKey = dataKey*7 + 3
			}
		}
	}
	return out
}

type readMachine interface {
	Space() []byte
	Fill(n int)
	FinishSeek() error
}

// source serves Read and Seek actions from memory, chunk bytes at a time.
type source struct {
	data  []byte
	pos   int
	chunk int
	seeks []uint64
}

func newSource(data []byte, chunk int) *source {
	return &source{data: data, chunk: chunk}
}

func (s *source) read(p []byte) int {
	if s.chunk > 0 && len(p) > s.chunk {
		p = p[:s.chunk]
	}
	if s.pos >= len(s.data) {
		return 0
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n
}

func drive[T any](t *testing.T, src *source, m readMachine, step func() (sansio.Action[T], error)) (T, error) {
	t.Helper()
	for {
		a, err := step()
		if err != nil {
			var zero T
			return zero, err
		}
		switch a.Kind {
		case sansio.ActionDone:
			return a.Value, nil
		case sansio.ActionRead:
			require.Positive(t, a.N)
			space := m.Space()
			require.GreaterOrEqual(t, len(space), a.N)
			m.Fill(src.read(space[:a.N]))
		case sansio.ActionSeek:
			src.pos = int(a.Pos)
			src.seeks = append(src.seeks, a.Pos)
			require.NoError(t, m.FinishSeek())
		default:
			t.Fatalf("unexpected action %v", a.Kind)
		}
	}
}

func readAll(t *testing.T, src *source, r *sansio.Reader) []entry {
	t.Helper()
	var out []entry
	for {
		h, err := drive(t, src, r, r.StepReadFileHeader)
		require.NoError(t, err)
		if h == nil {
			return out
		}
		out = append(out, entry{name: h.Name, data: readData(t, src, r, int(h.Size))})
	}
}

func readData(t *testing.T, src *source, r *sansio.Reader, size int) []byte {
	t.Helper()
	data := []byte{}
	p := make([]byte, 13)
	for {
		n, err := drive(t, src, r, func() (sansio.Action[int], error) { return r.StepReadFileData(p) })
		require.NoError(t, err)
		if n == 0 {
			break
		}
		data = append(data, p[:n]...)
	}
	require.Len(t, data, size)
	return data
}

func readData3(t *testing.T, src *source, r *sansio.Reader3, h *rgss.FileHeader3, bufSize int) []byte {
	t.Helper()
	data := []byte{}
	p := make([]byte, bufSize)
	for {
		n, err := drive(t, src, r, func() (sansio.Action[int], error) { return r.StepReadFileData(h, p) })
		require.NoError(t, err)
		if n == 0 {
			break
		}
		data = append(data, p[:n]...)
	}
	return data
}

type writeMachine interface {
	Data() []byte
	Consume(n int)
	Space() []byte
}

// sink drains Write actions into memory, at most chunk bytes at a time.
type sink struct {
	out   []byte
	chunk int
}

func (s *sink) drain(m writeMachine) {
	data := m.Data()
	if s.chunk > 0 && len(data) > s.chunk {
		data = data[:s.chunk]
	}
	s.out = append(s.out, data...)
	m.Consume(len(data))
}

func driveWrite[T any](t *testing.T, s *sink, m writeMachine, step func() (sansio.Action[T], error)) (T, error) {
	t.Helper()
	for {
		a, err := step()
		if err != nil {
			var zero T
			return zero, err
		}
		switch a.Kind {
		case sansio.ActionDone:
			return a.Value, nil
		case sansio.ActionWrite:
			require.NotEmpty(t, m.Data(), "write requested with nothing staged")
			s.drain(m)
		default:
			t.Fatalf("unexpected action %v", a.Kind)
		}
	}
}

// feed copies data through Space and hands it to step, draining when full.
func feed(t *testing.T, s *sink, m writeMachine, data []byte, step func(n int) (sansio.Action[int], error)) {
	t.Helper()
	for len(data) > 0 {
		space := m.Space()
		if len(space) == 0 {
			s.drain(m)
			continue
		}
		n := copy(space, data)
		got, err := driveWrite(t, s, m, func() (sansio.Action[int], error) { return step(n) })
		require.NoError(t, err)
		require.Equal(t, n, got)
		data = data[n:]
	}
}

func finish(t *testing.T, s *sink, m writeMachine, step func() (sansio.Action[struct{}], error)) {
	t.Helper()
	_, err := driveWrite(t, s, m, step)
	require.NoError(t, err)
	for len(m.Data()) > 0 {
		s.drain(m)
	}
}
