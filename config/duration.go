package config

import (
	"fmt"
	"time"
)

// Duration 以 time.ParseDuration 字符串形式读写的时长，如 "30s"、"1h30m"
//
// 通过 encoding.TextMarshaler 接入 JSON，数字形式被拒绝。
type Duration time.Duration

// UnmarshalText 解析时长字符串
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText 输出 time.Duration 的字符串形式
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration 底层 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
