/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sketch

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
)

//go:embed words.txt
var defaultWords string

// WordSource hands out secret words, one per turn.
type WordSource interface {
	NextWord() (string, error)
}

type WordOrder string

const (
	// WordsRandom picks independently each turn, so repeats are possible.
	WordsRandom WordOrder = "random"
	// WordsShuffle deals the whole list before any word repeats.
	WordsShuffle WordOrder = "shuffle"
)

type WordList struct {
	mu    sync.Mutex
	words []string
	order WordOrder
	deck  []string
}

func NewWordList(words []string, order WordOrder) (*WordList, error) {
	cleaned := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))

	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}

		key := normalizeGuess(w)
		if seen[key] {
			continue
		}
		seen[key] = true

		cleaned = append(cleaned, w)
	}

	if len(cleaned) == 0 {
		return nil, ErrNoWords
	}

	switch order {
	case WordsRandom, WordsShuffle:
	case "":
		order = WordsShuffle
	default:
		return nil, fmt.Errorf("unknown word order %q", order)
	}

	return &WordList{words: cleaned, order: order}, nil
}

// ReadWords parses one word or phrase per line. Blank lines and lines
// starting with # are skipped.
func ReadWords(r io.Reader) ([]string, error) {
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}

	return words, scanner.Err()
}

// LoadWordList reads the list at path, or the built-in list when path is empty.
func LoadWordList(path string, order WordOrder) (*WordList, error) {
	var r io.Reader = strings.NewReader(defaultWords)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		r = f
	}

	words, err := ReadWords(r)
	if err != nil {
		return nil, err
	}

	return NewWordList(words, order)
}

func (l *WordList) Len() int {
	return len(l.words)
}

func (l *WordList) NextWord() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.words) == 0 {
		return "", ErrNoWords
	}

	if l.order == WordsRandom {
		return l.words[rand.IntN(len(l.words))], nil
	}

	if len(l.deck) == 0 {
		l.deck = append(l.deck[:0], l.words...)
		rand.Shuffle(len(l.deck), func(i, j int) {
			l.deck[i], l.deck[j] = l.deck[j], l.deck[i]
		})
	}

	w := l.deck[len(l.deck)-1]
	l.deck = l.deck[:len(l.deck)-1]

	return w, nil
}
