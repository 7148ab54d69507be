package plate

import (
	"strings"
	"unicode/utf8"
)

// nukta sequences are written as base consonant + U+09BC. The precomposed
// code points U+09DC, U+09DD and U+09DF map the same way.
var avroSequences = []struct {
	bangla string
	avro   string
}{
	{"\u09a1\u09bc", "r"},
	{"\u09a2\u09bc", "rh"},
	{"\u09af\u09bc", "y"},
}

var avroTable = map[rune]string{
	// vowels
	'অ': "a", 'আ': "aa", 'ই': "i", 'ঈ': "ii", 'উ': "u", 'ঊ': "uu",
	'এ': "e", 'ঐ': "oi", 'ও': "o", 'ঔ': "ou",

	// consonants
	'ক': "k", 'খ': "kh", 'গ': "g", 'ঘ': "gh", 'ঙ': "ng",
	'চ': "c", 'ছ': "ch", 'জ': "j", 'ঝ': "jh", 'ঞ': "n",
	'ট': "T", 'ঠ': "Th", 'ড': "D", 'ঢ': "Dh", 'ণ': "N",
	'ত': "t", 'থ': "th", 'দ': "d", 'ধ': "dh", 'ন': "n",
	'প': "p", 'ফ': "ph", 'ব': "b", 'ভ': "bh", 'ম': "m",
	'য': "y", 'র': "r", 'ল': "l", 'শ': "sh", 'ষ': "Sh",
	'স': "s", 'হ': "h",
	'\u09dc': "r", '\u09dd': "rh", '\u09df': "y",

	// signs
	'ং': "ng", 'ঃ': ":", 'ঁ': "~", '।': ".",

	// digits
	'০': "0", '১': "1", '২': "2", '৩': "3", '৪': "4",
	'৫': "5", '৬': "6", '৭': "7", '৮': "8", '৯': "9",
}

// ToAvro transliterates Bangla text into Avro phonetic spelling. Runes with
// no mapping, including Latin letters and ASCII digits, are kept as they are.
//
// Arguments:
//   - text: Bangla or mixed-script text.
//
// Returns:
//   - string: The Avro spelling.
//
// @example
// plate.ToAvro("গ ১২৩৪") // "g 1234"
func ToAvro(text string) string {
	var b strings.Builder
	b.Grow(len(text))

outer:
	for len(text) > 0 {
		for _, seq := range avroSequences {
			if strings.HasPrefix(text, seq.bangla) {
				b.WriteString(seq.avro)
				text = text[len(seq.bangla):]
				continue outer
			}
		}

		r, size := utf8.DecodeRuneInString(text)
		if avro, ok := avroTable[r]; ok {
			b.WriteString(avro)
		} else {
			b.WriteString(text[:size])
		}
		text = text[size:]
	}

	return b.String()
}
