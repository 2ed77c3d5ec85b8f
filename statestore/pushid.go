package statestore

import (
	"crypto/rand"
	gosync "sync"
	"time"
)

// Push ids are 20-char keys that sort lexicographically by creation time:
// 8 chars encode the epoch-millisecond timestamp, 12 chars are random. Ids
// minted within the same millisecond reuse the random suffix incremented by
// one, which keeps them unique and ordered even under bursts.
const pushIDAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

type pushIDSource struct {
	mu       gosync.Mutex
	lastMs   int64
	lastRand [12]byte
}

func newPushIDSource() *pushIDSource {
	return &pushIDSource{lastMs: -1}
}

func (p *pushIDSource) Next(now time.Time) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ms := now.UnixMilli()
	if ms != p.lastMs {
		p.lastMs = ms
		var buf [12]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic(err)
		}
		for i := range buf {
			buf[i] %= 64
		}
		p.lastRand = buf
	} else {
		// same millisecond: increment the suffix
		for i := len(p.lastRand) - 1; i >= 0; i-- {
			p.lastRand[i]++
			if p.lastRand[i] < 64 {
				break
			}
			p.lastRand[i] = 0
		}
	}

	var id [20]byte
	for i := 7; i >= 0; i-- {
		id[i] = pushIDAlphabet[ms%64]
		ms /= 64
	}
	for i, b := range p.lastRand {
		id[8+i] = pushIDAlphabet[b]
	}
	return string(id[:])
}
