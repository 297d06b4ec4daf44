package alsa

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var cardHeader = regexp.MustCompile(`^\s*(\d+)\s+\[([^\]]*)\]:\s*(\S+)\s+-\s+(.*)$`)

// ParseCards parses /proc/asound/cards.
func ParseCards(r io.Reader) ([]Card, error) {
	var cards []Card
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		m := cardHeader.FindStringSubmatch(line)
		if m == nil {
			// Continuation line carrying the long name of the previous card.
			if n := len(cards); n > 0 && cards[n-1].LongName == "" && strings.TrimSpace(line) != "" {
				cards[n-1].LongName = strings.TrimSpace(line)
			}
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("card number %q: %w", m[1], err)
		}
		cards = append(cards, Card{
			Number: num,
			ID:     strings.TrimSpace(m[2]),
			Driver: m[3],
			Name:   strings.TrimSpace(m[4]),
		})
	}
	return cards, sc.Err()
}

// ParseStream parses the playback section of a USB audio stream descriptor
// (/proc/asound/cardN/streamM). Capture altsettings are ignored.
func ParseStream(r io.Reader) ([]StreamFormat, error) {
	var (
		formats  []StreamFormat
		cur      *StreamFormat
		playback bool
	)
	flush := func() {
		if cur != nil && cur.Format != "" {
			formats = append(formats, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "Playback:":
			playback = true
			continue
		case line == "Capture:":
			flush()
			playback = false
			continue
		}
		if !playback {
			continue
		}
		if strings.HasPrefix(line, "Interface") || strings.HasPrefix(line, "Altset") {
			flush()
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "Format":
			if cur != nil && cur.Format != "" {
				flush()
			}
			if cur == nil {
				cur = &StreamFormat{}
			}
			cur.Format = value
		case "Channels":
			if cur != nil {
				cur.Channels, _ = strconv.Atoi(value)
			}
		case "Bits":
			if cur != nil {
				cur.Bits, _ = strconv.Atoi(value)
			}
		case "Rates":
			if cur != nil {
				cur.Rates = parseRates(value)
			}
		}
	}
	flush()
	return formats, sc.Err()
}

func parseRates(s string) []int {
	if lo, hi, ok := strings.Cut(s, " - "); ok {
		hi, _, _ = strings.Cut(strings.TrimSpace(hi), " ")
		l, err1 := strconv.Atoi(strings.TrimSpace(lo))
		h, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil {
			return nil
		}
		return ratesInRange(l, h)
	}

	var rates []int
	for _, f := range strings.Split(s, ",") {
		if v, err := strconv.Atoi(strings.TrimSpace(f)); err == nil && v > 0 {
			rates = append(rates, v)
		}
	}
	return rates
}

// ParseHWParams parses a hw_params file. It returns false when the PCM is closed.
func ParseHWParams(r io.Reader) (HWParams, bool, error) {
	var p HWParams
	seen := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "closed" {
			return HWParams{}, false, nil
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "format":
			p.Format = value
			seen = true
		case "channels":
			p.Channels, _ = strconv.Atoi(value)
		case "rate":
			// "96000 (96000/1)"
			v, _, _ := strings.Cut(value, " ")
			p.Rate, _ = strconv.Atoi(v)
		}
	}
	if err := sc.Err(); err != nil {
		return HWParams{}, false, err
	}
	return p, seen && p.Rate > 0 && p.Channels > 0, nil
}
