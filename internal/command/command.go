// Package command 解析标准输入上的交互命令
//
// 支持的命令：
//
//	send <peer> <msg...>   向已连接节点发送一条消息
//	list                   列出已有消息通道的节点
//
// 其余输入均解析为 Unknown。
package command

import "strings"

// Command 解析后的命令
type Command interface {
	command()
}

// Send 发送消息命令
type Send struct {
	Peer    string
	Message string
}

// List 列出节点命令
type List struct{}

// Unknown 无法识别的输入
type Unknown struct {
	Line string
}

func (Send) command()    {}
func (List) command()    {}
func (Unknown) command() {}

// Parse 按空白切分一行输入
//
// send 至少需要三个词，消息为第三个词起以单个空格连接的结果；
// list 只看第一个词，后续参数被忽略。
func Parse(line string) Command {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Unknown{Line: line}
	}
	switch tokens[0] {
	case "send":
		if len(tokens) < 3 {
			return Unknown{Line: line}
		}
		return Send{Peer: tokens[1], Message: strings.Join(tokens[2:], " ")}
	case "list":
		return List{}
	}
	return Unknown{Line: line}
}
