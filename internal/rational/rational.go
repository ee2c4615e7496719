package rational

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrZeroDenominator is returned when a value is constructed with a zero denominator
	ErrZeroDenominator = errors.New("rational: zero denominator")

	// ErrOverflow is returned when a parsed value does not fit in 64-bit terms
	ErrOverflow = errors.New("rational: value out of range")
)

// Rational is an exact fraction num/den stored in lowest terms.
// The zero value is 0/1.
type Rational struct {
	num int64
	den int64
}

// Zero is 0/1
var Zero = Rational{0, 1}

// New returns num/den reduced to lowest terms.
func New(num, den int64) (Rational, error) {
	if den == 0 {
		return Rational{}, ErrZeroDenominator
	}
	return reduce(num, den), nil
}

// MustNew is New for constants known to be valid. It panics on a zero denominator.
func MustNew(num, den int64) Rational {
	r, err := New(num, den)
	if err != nil {
		panic(err)
	}
	return r
}

// FromInt returns n/1.
func FromInt(n int64) Rational {
	return Rational{n, 1}
}

// FromDuration converts a time.Duration to seconds.
func FromDuration(d time.Duration) Rational {
	return reduce(int64(d), int64(time.Second))
}

// FromTicks converts a native timestamp expressed in time base tb to seconds.
func FromTicks(ticks int64, tb Rational) Rational {
	return tb.Mul(FromInt(ticks))
}

func reduce(num, den int64) Rational {
	if den < 0 {
		num, den = -num, -den
	}
	if g := gcd(num, den); g > 1 {
		num /= g
		den /= g
	}
	return Rational{num, den}
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Num returns the reduced numerator.
func (r Rational) Num() int64 { return r.num }

// Den returns the reduced denominator, always positive.
func (r Rational) Den() int64 {
	if r.den == 0 {
		return 1
	}
	return r.den
}

// Add returns r + o.
func (r Rational) Add(o Rational) Rational {
	rd, od := r.Den(), o.Den()
	g := gcd(rd, od)
	return reduce(r.num*(od/g)+o.num*(rd/g), rd/g*od)
}

// Sub returns r - o.
func (r Rational) Sub(o Rational) Rational {
	return r.Add(o.Neg())
}

// Neg returns -r.
func (r Rational) Neg() Rational {
	return Rational{-r.num, r.Den()}
}

// Mul returns r × o. Factors are cross-reduced first to keep intermediates small.
func (r Rational) Mul(o Rational) Rational {
	rn, rd, on, od := r.num, r.Den(), o.num, o.Den()
	if g := gcd(rn, od); g > 1 {
		rn /= g
		od /= g
	}
	if g := gcd(on, rd); g > 1 {
		on /= g
		rd /= g
	}
	return reduce(rn*on, rd*od)
}

// Div returns r ÷ o. Dividing by zero returns ErrZeroDenominator.
func (r Rational) Div(o Rational) (Rational, error) {
	if o.num == 0 {
		return Rational{}, ErrZeroDenominator
	}
	return r.Mul(Rational{o.Den(), o.num}.normalized()), nil
}

// Inv returns 1/r.
func (r Rational) Inv() (Rational, error) {
	return New(r.Den(), r.num)
}

func (r Rational) normalized() Rational {
	if r.den < 0 {
		return Rational{-r.num, -r.den}
	}
	return r
}

// Cmp returns -1, 0 or +1 depending on whether r <, ==, > o.
func (r Rational) Cmp(o Rational) int {
	return cmp128(r.num, o.Den(), o.num, r.Den())
}

// cmp128 compares a*b with c*d without overflow.
func cmp128(a, b, c, d int64) int {
	ls, lhi, llo := mul128(a, b)
	rs, rhi, rlo := mul128(c, d)
	if ls != rs {
		if ls < rs {
			return -1
		}
		return 1
	}
	m := cmpMag(lhi, llo, rhi, rlo)
	if ls < 0 {
		return -m
	}
	return m
}

func mul128(a, b int64) (sign int, hi, lo uint64) {
	if a == 0 || b == 0 {
		return 0, 0, 0
	}
	sign = 1
	if (a < 0) != (b < 0) {
		sign = -1
	}
	hi, lo = bits.Mul64(abs64(a), abs64(b))
	return sign, hi, lo
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(^v) + 1
	}
	return uint64(v)
}

func cmpMag(ahi, alo, bhi, blo uint64) int {
	switch {
	case ahi < bhi:
		return -1
	case ahi > bhi:
		return 1
	case alo < blo:
		return -1
	case alo > blo:
		return 1
	}
	return 0
}

// Less reports r < o.
func (r Rational) Less(o Rational) bool { return r.Cmp(o) < 0 }

// Equal reports r == o.
func (r Rational) Equal(o Rational) bool { return r.Cmp(o) == 0 }

// Sign returns -1, 0 or +1.
func (r Rational) Sign() int {
	switch {
	case r.num < 0:
		return -1
	case r.num > 0:
		return 1
	}
	return 0
}

// IsZero reports whether r is zero.
func (r Rational) IsZero() bool { return r.num == 0 }

// Floor returns the largest integer not greater than r.
func (r Rational) Floor() int64 {
	d := r.Den()
	q := r.num / d
	if r.num%d != 0 && r.num < 0 {
		q--
	}
	return q
}

// Float64 returns the nearest float64 value.
func (r Rational) Float64() float64 {
	return float64(r.num) / float64(r.Den())
}

// Duration converts seconds to a time.Duration, truncating toward zero.
func (r Rational) Duration() time.Duration {
	v := new(big.Int).Mul(big.NewInt(r.num), big.NewInt(int64(time.Second)))
	v.Quo(v, big.NewInt(r.Den()))
	if !v.IsInt64() {
		if v.Sign() < 0 {
			return time.Duration(math.MinInt64)
		}
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v.Int64())
}

// Ticks converts seconds to a native timestamp in time base tb,
// rounding to the nearest tick with halves away from zero.
func (r Rational) Ticks(tb Rational) int64 {
	if tb.num == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(r.num), big.NewInt(tb.Den()))
	d := new(big.Int).Mul(big.NewInt(r.Den()), big.NewInt(tb.num))
	if d.Sign() < 0 {
		n.Neg(n)
		d.Neg(d)
	}
	half := new(big.Int).Quo(d, big.NewInt(2))
	if n.Sign() >= 0 {
		n.Add(n, half)
	} else {
		n.Sub(n, half)
	}
	n.Quo(n, d)
	return n.Int64()
}

// Min returns the smaller of a and b.
func Min(a, b Rational) Rational {
	if b.Less(a) {
		return b
	}
	return a
}

// Max returns the larger of a and b.
func Max(a, b Rational) Rational {
	if a.Less(b) {
		return b
	}
	return a
}

// String formats r as "num/den", or "num" when den is 1.
func (r Rational) String() string {
	if r.Den() == 1 {
		return strconv.FormatInt(r.num, 10)
	}
	return strconv.FormatInt(r.num, 10) + "/" + strconv.FormatInt(r.Den(), 10)
}

// Parse reads "num/den", a decimal such as "1.25", or an integer.
func Parse(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rational{}, fmt.Errorf("rational: empty value")
	}
	if n, d, ok := strings.Cut(s, "/"); ok {
		num, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("rational: invalid numerator %q: %w", n, err)
		}
		den, err := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("rational: invalid denominator %q: %w", d, err)
		}
		return New(num, den)
	}
	br, ok := new(big.Rat).SetString(s)
	if !ok {
		return Rational{}, fmt.Errorf("rational: invalid value %q", s)
	}
	if !br.Num().IsInt64() || !br.Denom().IsInt64() {
		return Rational{}, ErrOverflow
	}
	return New(br.Num().Int64(), br.Denom().Int64())
}

// MarshalText implements encoding.TextMarshaler.
func (r Rational) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rational) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// UnmarshalJSON accepts a string, a number, or an object with num and den.
func (r *Rational) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		return r.UnmarshalText([]byte(str))
	case strings.HasPrefix(s, "{"):
		var obj struct {
			Num int64 `json:"num"`
			Den int64 `json:"den"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		v, err := New(obj.Num, obj.Den)
		if err != nil {
			return err
		}
		*r = v
		return nil
	}
	return r.UnmarshalText([]byte(s))
}
