package mrvl

import "github.com/taoyao-code/iot-btcfg/internal/hci"

// Observer 流水线运行观察钩子，供运行追踪与指标桥接。
// 实现必须快速返回，回调发生在事件派发路径上。
type Observer interface {
	StateChanged(runID string, p Pipeline, from, to State)
	CommandSent(runID string, p Pipeline, op hci.Opcode)
	CommandCompleted(runID string, p Pipeline, op hci.Opcode, status uint8)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, Pipeline, State, State)          {}
func (nopObserver) CommandSent(string, Pipeline, hci.Opcode)             {}
func (nopObserver) CommandCompleted(string, Pipeline, hci.Opcode, uint8) {}

// NopObserver 空观察器
func NopObserver() Observer { return nopObserver{} }

type multiObserver []Observer

func (m multiObserver) StateChanged(runID string, p Pipeline, from, to State) {
	for _, o := range m {
		o.StateChanged(runID, p, from, to)
	}
}

func (m multiObserver) CommandSent(runID string, p Pipeline, op hci.Opcode) {
	for _, o := range m {
		o.CommandSent(runID, p, op)
	}
}

func (m multiObserver) CommandCompleted(runID string, p Pipeline, op hci.Opcode, status uint8) {
	for _, o := range m {
		o.CommandCompleted(runID, p, op, status)
	}
}

// MultiObserver 把多个观察器合并为一个，nil 项被跳过
func MultiObserver(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
