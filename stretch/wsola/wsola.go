// Package wsola implements pitch-preserving time stretching with Waveform
// Similarity Overlap-Add.
package wsola

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/stretch/stretch/audio"
)

var (
	// ErrInvalidTempo is returned for non-positive, NaN or infinite tempos.
	ErrInvalidTempo = errors.New("tempo must be a positive finite number")
)

// Converter turns a source PCM range into a buffer played at tempo.
// Implementations must not mutate src and must be safe to call from
// several goroutines at once.
type Converter interface {
	Convert(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error) {
	return f(ctx, src, tempo)
}

// Options tunes the analysis frame and the similarity search.
type Options struct {
	// FrameDuration is the Hann window length. Frames overlap by half.
	FrameDuration time.Duration `yaml:"frame_duration" env:"FRAME_DURATION" envDefault:"40ms"`
	// SearchDuration is how far around the nominal analysis position the
	// best matching segment is searched for.
	SearchDuration time.Duration `yaml:"search_duration" env:"SEARCH_DURATION" envDefault:"10ms"`
}

// DefaultOptions returns the options used by New when fields are zero.
func DefaultOptions() Options {
	return Options{
		FrameDuration:  40 * time.Millisecond,
		SearchDuration: 10 * time.Millisecond,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %v", o.FrameDuration)
	}
	if o.SearchDuration < 0 || o.SearchDuration >= o.FrameDuration {
		return fmt.Errorf("search duration must be in [0, %v), got %v", o.FrameDuration, o.SearchDuration)
	}
	return nil
}

// WSOLA is a stateless Converter.
type WSOLA struct {
	opts Options
}

// New creates a converter. Zero option fields take their defaults.
func New(opts Options) *WSOLA {
	def := DefaultOptions()
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = def.FrameDuration
	}
	if opts.SearchDuration <= 0 {
		opts.SearchDuration = def.SearchDuration
	}
	return &WSOLA{opts: opts}
}

// Options returns the effective options.
func (w *WSOLA) Options() Options { return w.opts }

// Convert stretches src so that it plays tempo times faster. The result
// holds exactly round(frames/tempo) frames. Tempo 1 returns a copy.
func (w *WSOLA) Convert(ctx context.Context, src *audio.Buffer, tempo float64) (*audio.Buffer, error) {
	if !ValidTempo(tempo) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTempo, tempo)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inFrames := src.Frames()
	outFrames := int(math.Round(float64(inFrames) / tempo))
	out := audio.New(src.SampleRate, src.Channels, outFrames)
	if inFrames == 0 || outFrames == 0 {
		return out, nil
	}
	if math.Abs(tempo-1) < 1e-9 {
		copy(out.Samples, src.Samples)
		return out, nil
	}

	n := framesOf(w.opts.FrameDuration, src.SampleRate) &^ 1
	if n < 4 || inFrames < n {
		resample(src, out, tempo)
		return out, nil
	}
	hop := n / 2
	delta := framesOf(w.opts.SearchDuration, src.SampleRate)

	var (
		ch      = src.Channels
		win     = hann(n)
		mono    = downmix(src)
		norm    = make([]float32, outFrames)
		maxPos  = inFrames - n
		prevPos = 0
	)

	for k := 0; k*hop < outFrames; k++ {
		if k%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		outPos := k * hop
		pos := 0
		if k > 0 {
			nominal := clamp(int(math.Round(float64(outPos)*tempo)), 0, maxPos)
			pos = bestMatch(mono, prevPos+hop, nominal, delta, hop, maxPos)
		}

		for i := 0; i < n; i++ {
			o := outPos + i
			if o >= outFrames {
				break
			}
			g := win[i]
			norm[o] += g
			j := (pos + i) * ch
			for c := 0; c < ch; c++ {
				out.Samples[o*ch+c] += src.Samples[j+c] * g
			}
		}
		prevPos = pos
	}

	for o, g := range norm {
		if g < 1e-3 {
			continue
		}
		inv := 1 / g
		for c := 0; c < ch; c++ {
			out.Samples[o*ch+c] *= inv
		}
	}

	return out, nil
}

// ValidTempo reports whether tempo can be converted.
func ValidTempo(tempo float64) bool {
	return tempo > 0 && !math.IsNaN(tempo) && !math.IsInf(tempo, 0)
}

// bestMatch searches [nominal-delta, nominal+delta] for the segment most
// similar to the natural continuation of the previous frame. A coarse pass
// is refined around its winner.
func bestMatch(mono []float32, natural, nominal, delta, length, maxPos int) int {
	if natural+length > len(mono) || delta == 0 {
		return nominal
	}
	lo := clamp(nominal-delta, 0, maxPos)
	hi := clamp(nominal+delta, 0, maxPos)

	step := max(1, delta/16)
	best, bestScore := nominal, math.Inf(-1)
	for p := lo; p <= hi; p += step {
		if s := similarity(mono, natural, p, length, 2); s > bestScore {
			best, bestScore = p, s
		}
	}

	if step > 1 {
		from := max(lo, best-step+1)
		to := min(hi, best+step-1)
		for p := from; p <= to; p++ {
			if s := similarity(mono, natural, p, length, 1); s > bestScore {
				best, bestScore = p, s
			}
		}
	}
	return best
}

// similarity is the normalised cross-correlation of two segments.
func similarity(x []float32, a, b, length, stride int) float64 {
	var xy, yy float64
	for i := 0; i < length; i += stride {
		if a+i >= len(x) || b+i >= len(x) {
			break
		}
		u, v := float64(x[a+i]), float64(x[b+i])
		xy += u * v
		yy += v * v
	}
	return xy / math.Sqrt(yy+1e-9)
}

// resample maps time linearly for inputs shorter than one analysis frame.
// Pitch shifts here, but the span is too short to be audible.
func resample(src, out *audio.Buffer, tempo float64) {
	ch := src.Channels
	last := src.Frames() - 1
	for o := 0; o < out.Frames(); o++ {
		x := float64(o) * tempo
		i := int(x)
		if i >= last {
			copy(out.Samples[o*ch:(o+1)*ch], src.Samples[last*ch:(last+1)*ch])
			continue
		}
		f := float32(x - float64(i))
		for c := 0; c < ch; c++ {
			a, b := src.Samples[i*ch+c], src.Samples[(i+1)*ch+c]
			out.Samples[o*ch+c] = a + (b-a)*f
		}
	}
}

func hann(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func downmix(b *audio.Buffer) []float32 {
	frames := b.Frames()
	if b.Channels == 1 {
		return b.Samples[:frames]
	}
	mono := make([]float32, frames)
	scale := 1 / float32(b.Channels)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[f*b.Channels+c]
		}
		mono[f] = sum * scale
	}
	return mono
}

func framesOf(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
