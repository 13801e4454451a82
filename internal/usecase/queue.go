package usecase

import "slices"

// MatchmakingQueue is a FIFO of waiting player ids. It is guarded by the GameManager lock.
type MatchmakingQueue struct {
	ids []string
}

func NewMatchmakingQueue() *MatchmakingQueue {
	return &MatchmakingQueue{}
}

func (that *MatchmakingQueue) Push(id string) {
	that.ids = append(that.ids, id)
}

// PushFront returns a popped id to the head of the queue.
func (that *MatchmakingQueue) PushFront(id string) {
	that.ids = append([]string{id}, that.ids...)
}

func (that *MatchmakingQueue) Pop() (string, bool) {
	if len(that.ids) == 0 {
		return "", false
	}

	id := that.ids[0]
	that.ids = that.ids[1:]

	return id, true
}

func (that *MatchmakingQueue) Remove(id string) bool {
	i := slices.Index(that.ids, id)
	if i < 0 {
		return false
	}

	that.ids = slices.Delete(that.ids, i, i+1)

	return true
}

func (that *MatchmakingQueue) Contains(id string) bool {
	return slices.Contains(that.ids, id)
}

func (that *MatchmakingQueue) Len() int {
	return len(that.ids)
}
