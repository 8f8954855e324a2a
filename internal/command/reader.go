package command

import (
	"bufio"
	"context"
	"io"
)

// DefaultQueueSize 命令队列默认容量
const DefaultQueueSize = 100

// MaxLineSize 单行最大字节数
const MaxLineSize = 1 << 20

// Reader 逐行读取输入并解析为命令
type Reader struct {
	in  io.Reader
	out chan Command
}

// NewReader 创建读取器，size <= 0 时使用 DefaultQueueSize
func NewReader(in io.Reader, size int) *Reader {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Reader{in: in, out: make(chan Command, size)}
}

// Commands 命令队列，Run 返回时关闭
func (r *Reader) Commands() <-chan Command { return r.out }

// Run 读取直到 EOF、读错误或 ctx 结束
//
// 队列满时阻塞。EOF 返回 nil。
func (r *Reader) Run(ctx context.Context) error {
	defer close(r.out)

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for sc.Scan() {
		cmd := Parse(sc.Text())
		select {
		case r.out <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("读取命令失败", "err", err)
		return err
	}
	log.Debug("命令输入结束")
	return nil
}
