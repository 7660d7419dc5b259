package ratelimit

import (
	"math"
	"strconv"
	"strings"

	"github.com/ceyewan/dsync/xerrors"
)

// State 持久化的令牌桶快照，存储格式为 "rate,nextFreeMillis,stored,max"
type State struct {
	Rate           float64
	NextFreeMillis int64
	Stored         float64
	Max            float64
}

// NewState 以 limit 的初始令牌数创建一个新桶，now 为存储端时间（毫秒）
func NewState(limit Limit, now int64) *State {
	s := &State{
		Rate:           limit.Rate,
		NextFreeMillis: now,
		Stored:         limit.InitPermits(),
		Max:            limit.MaxPermits(),
	}
	s.Resync(now)
	return s
}

// ParseState 解析 Encode 的输出
func ParseState(raw string) (*State, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, xerrors.Wrapf(ErrMalformedState, "want 4 fields, got %d: %q", len(parts), raw)
	}

	var (
		s   State
		err error
	)
	if s.Rate, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return nil, xerrors.Wrapf(ErrMalformedState, "rate %q", parts[0])
	}
	if s.NextFreeMillis, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return nil, xerrors.Wrapf(ErrMalformedState, "next free %q", parts[1])
	}
	if s.Stored, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return nil, xerrors.Wrapf(ErrMalformedState, "stored %q", parts[2])
	}
	if s.Max, err = strconv.ParseFloat(parts[3], 64); err != nil {
		return nil, xerrors.Wrapf(ErrMalformedState, "max %q", parts[3])
	}
	if math.IsNaN(s.Stored) || math.IsNaN(s.Max) || math.IsNaN(s.Rate) {
		return nil, xerrors.Wrapf(ErrMalformedState, "NaN in %q", raw)
	}
	return &s, nil
}

// Encode 序列化为存储格式
func (s *State) Encode() string {
	return strings.Join([]string{
		strconv.FormatFloat(s.Rate, 'f', -1, 64),
		strconv.FormatInt(s.NextFreeMillis, 10),
		strconv.FormatFloat(s.Stored, 'f', -1, 64),
		strconv.FormatFloat(s.Max, 'f', -1, 64),
	}, ",")
}

// Reconfigure 用 limit 覆盖持久化的速率与容量，返回是否有变化
func (s *State) Reconfigure(limit Limit) bool {
	rate, maxPermits := limit.Rate, limit.MaxPermits()
	if s.Rate == rate && s.Max == maxPermits {
		return false
	}
	s.Rate, s.Max = rate, maxPermits
	s.Stored = clamp(s.Stored, s.Max)
	return true
}

// Resync 把 NextFreeMillis 到 now 之间生成的令牌计入桶中。
// now 早于 NextFreeMillis 时说明这段时间已经被之前的请求预支，不做处理。
func (s *State) Resync(now int64) {
	if now < s.NextFreeMillis {
		return
	}
	elapsed := float64(now-s.NextFreeMillis) / 1000
	s.Stored = clamp(s.Stored+elapsed*s.Rate, s.Max)
	s.NextFreeMillis = now
}

// WaitMillis 凑够 permits 个令牌还需要等待的毫秒数
func (s *State) WaitMillis(permits int) int64 {
	p := float64(permits)
	if s.Stored >= p {
		return 0
	}
	return int64(math.Ceil((p - s.Stored) / s.Rate * 1000))
}

// Take 扣减 permits 个令牌，nextFree 之前的时间视为已被本次请求占用
func (s *State) Take(permits int, nextFree int64) {
	s.Stored = clamp(s.Stored-float64(permits), s.Max)
	s.NextFreeMillis = nextFree
}

// Drain 取走所有整数个令牌
func (s *State) Drain() int64 {
	n := math.Floor(s.Stored)
	s.Stored = clamp(s.Stored-n, s.Max)
	return int64(n)
}

func clamp(v, hi float64) float64 {
	return max(min(v, hi), 0)
}
