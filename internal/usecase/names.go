package usecase

import (
	"fmt"
	"math/rand"
	"sync"
)

var (
	adjectives = []string{
		"Brave", "Quiet", "Lucky", "Swift", "Clever", "Mighty", "Sleepy", "Jolly",
		"Bold", "Calm", "Eager", "Gentle", "Witty", "Fuzzy", "Nimble", "Sunny",
	}
	animals = []string{
		"Owl", "Fox", "Otter", "Badger", "Heron", "Lynx", "Panda", "Falcon",
		"Tortoise", "Hare", "Wolf", "Gecko", "Moose", "Puffin", "Koala", "Raven",
	}
)

// nameGenerator hands out display names like "Brave Owl 42".
type nameGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newNameGenerator(seed int64) *nameGenerator {
	return &nameGenerator{
		rng: rand.New(rand.NewSource(seed)), //nolint: gosec // display names need no crypto randomness
	}
}

func (that *nameGenerator) next() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return fmt.Sprintf("%s %s %d",
		adjectives[that.rng.Intn(len(adjectives))],
		animals[that.rng.Intn(len(animals))],
		that.rng.Intn(100),
	)
}
