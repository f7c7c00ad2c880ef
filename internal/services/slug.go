package services

import (
	"fmt"
	"math/rand/v2"
)

var natoAlphabet = [...]string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel",
	"India", "Juliet", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa",
	"Quebec", "Romeo", "Sierra", "Tango", "Uniform", "Victor", "Whiskey",
	"Xray", "Yankee", "Zulu",
}

// GenerateSlug returns a short memorable slug such as "Alpha-Bravo-123".
// The number is always three digits (100-999).
func GenerateSlug() string {
	w1 := natoAlphabet[rand.IntN(len(natoAlphabet))]
	w2 := natoAlphabet[rand.IntN(len(natoAlphabet))]
	return fmt.Sprintf("%s-%s-%d", w1, w2, 100+rand.IntN(900))
}
