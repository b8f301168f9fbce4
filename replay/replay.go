// Package replay 把每次广播的快照录成压缩流，用于离线回放与排查。
//
// 每帧为 msgpack 编码的 {seq, tick, digest, state}，整体放在一条 lz4 流里；
// digest 是 state 字节的 blake3 摘要。
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"minisync/game"
)

var (
	ErrCorruptFrame = errors.New("replay: frame digest mismatch")
	ErrQueueFull    = errors.New("replay: queue full")
	ErrClosed       = errors.New("replay: recorder closed")
)

type record struct {
	Seq    uint64             `msgpack:"seq"`
	Tick   uint64             `msgpack:"tick"`
	Digest []byte             `msgpack:"digest"`
	State  msgpack.RawMessage `msgpack:"state"`
}

// Frame 一帧回放
type Frame struct {
	Seq    uint64
	Tick   uint64
	Digest [32]byte
	State  game.GameState
}

func marshalState(st game.GameState) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(&st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalState(b []byte) (game.GameState, error) {
	var st game.GameState
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&st); err != nil {
		return game.GameState{}, err
	}
	st.Normalize()
	return st, nil
}

// Recorder 异步写盘：Record 只做编码并入队，落盘在后台协程完成
type Recorder struct {
	log   *zap.SugaredLogger
	out   io.WriteCloser
	zw    *lz4.Writer
	enc   *msgpack.Encoder
	queue chan record

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	err     error
	dropped atomic.Uint64
	written atomic.Uint64
}

// Create 在 path 新建回放文件
func Create(path string, log *zap.SugaredLogger) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create replay %s: %w", path, err)
	}
	return NewRecorder(f, 256, log), nil
}

func NewRecorder(out io.WriteCloser, queue int, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	zw := lz4.NewWriter(out)
	r := &Recorder{
		log:   log,
		out:   out,
		zw:    zw,
		enc:   msgpack.NewEncoder(zw),
		queue: make(chan record, queue),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record 编码快照并入队，队列满时丢弃该帧
func (r *Recorder) Record(st game.GameState) error {
	b, err := marshalState(st)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", st.Seq, err)
	}
	sum := blake3.Sum256(b)
	rec := record{Seq: st.Seq, Tick: st.Tick, Digest: sum[:], State: b}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	select {
	case r.queue <- rec:
		return nil
	default:
		r.dropped.Add(1)
		return ErrQueueFull
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.queue {
		if r.err != nil {
			continue
		}
		if err := r.enc.Encode(&rec); err != nil {
			r.err = err
			r.log.Errorw("replay write failed, recording stopped", "seq", rec.Seq, "error", err)
			continue
		}
		r.written.Add(1)
	}
}

// Close 写完队列中的帧后关闭文件
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	err := r.err
	err = multierr.Append(err, r.zw.Close())
	err = multierr.Append(err, r.out.Close())
	return err
}

// Counts 已写入与丢弃的帧数
func (r *Recorder) Counts() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

// Reader 顺序读取回放帧
type Reader struct {
	dec *msgpack.Decoder
}

func NewReader(in io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(lz4.NewReader(in))}
}

// Next 返回下一帧，读完时返回 io.EOF
func (r *Reader) Next() (Frame, error) {
	var rec record
	if err := r.dec.Decode(&rec); err != nil {
		return Frame{}, err
	}
	sum := blake3.Sum256(rec.State)
	if !bytes.Equal(sum[:], rec.Digest) {
		return Frame{}, fmt.Errorf("seq %d: %w", rec.Seq, ErrCorruptFrame)
	}
	st, err := unmarshalState(rec.State)
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame %d: %w", rec.Seq, err)
	}
	return Frame{Seq: rec.Seq, Tick: rec.Tick, Digest: sum, State: st}, nil
}

// ReadFile 读出文件中的全部帧
func ReadFile(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var frames []Frame
	r := NewReader(f)
	for {
		fr, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, fr)
	}
}
