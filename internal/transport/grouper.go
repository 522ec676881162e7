package transport

import "cwship/internal/model"

// Partition 은 하나의 destination 으로 갈 이벤트 묶음이다.
// Events 는 큐에 들어온 순서를 그대로 유지한다.
type Partition struct {
	Destination model.Destination
	Events      []model.LogEvent
}

// Inputs 는 원본 레코드를 제거한 sink 전달용 이벤트 목록을 만든다.
func (p Partition) Inputs() []model.InputEvent {
	out := make([]model.InputEvent, len(p.Events))
	for i, ev := range p.Events {
		out[i] = ev.Input()
	}
	return out
}

// PartitionEvents
//
// 이벤트마다 group / stream resolver 를 적용해 destination 별로 나눈다.
//   - 같은 destination 안에서는 입력 순서를 보존한다.
//   - 반환 slice 순서는 destination 이 처음 등장한 순서다.
//     (destination 사이의 순서는 보장 대상이 아니지만, 결과를 결정적으로 만들어
//     테스트와 로그 비교를 쉽게 한다)
func PartitionEvents(events []model.LogEvent, group, stream Resolver) []Partition {
	if len(events) == 0 {
		return nil
	}

	index := make(map[model.Destination]int)
	parts := make([]Partition, 0, 1)

	for _, ev := range events {
		dst := model.Destination{
			Group:  group.Resolve(ev.Raw),
			Stream: stream.Resolve(ev.Raw),
		}

		i, ok := index[dst]
		if !ok {
			i = len(parts)
			index[dst] = i
			parts = append(parts, Partition{Destination: dst})
		}
		parts[i].Events = append(parts[i].Events, ev)
	}

	return parts
}
