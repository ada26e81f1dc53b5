package mirror

import (
	"sort"
	"unicode/utf8"

	"go.mirrord.dev/internal/telegram"
)

// Unit is one logical send: a single message, or an album collapsed to its
// primary member. Jobs gate and advance their cursor on the primary's id, so
// an album is delivered at most once per job no matter how many members it
// has.
type Unit struct {
	// Primary carries the text, entities and media that get republished.
	Primary telegram.Message

	// Album holds every member of the group ascending by id; nil for a
	// single message.
	Album []telegram.Message
}

// ID returns the id jobs compare their cursor against.
func (u Unit) ID() int {
	return u.Primary.ID
}

// Partition groups a fetched batch into send units: albums first, ordered by
// their smallest member id, then single messages in ascending order. Album
// members share a grouped id.
func Partition(msgs []telegram.Message) []Unit {
	groups := make(map[int64][]telegram.Message)
	var singles []telegram.Message
	for _, m := range msgs {
		if m.ID <= 0 {
			continue
		}
		if m.GroupedID != 0 {
			groups[m.GroupedID] = append(groups[m.GroupedID], m)
		} else {
			singles = append(singles, m)
		}
	}

	albums := make([][]telegram.Message, 0, len(groups))
	for _, album := range groups {
		sort.Slice(album, func(i, j int) bool { return album[i].ID < album[j].ID })
		albums = append(albums, album)
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i][0].ID < albums[j][0].ID })

	units := make([]Unit, 0, len(albums)+len(singles))
	for _, album := range albums {
		units = append(units, Unit{Primary: primaryMember(album), Album: album})
	}

	sort.Slice(singles, func(i, j int) bool { return singles[i].ID < singles[j].ID })
	for _, m := range singles {
		units = append(units, Unit{Primary: m})
	}
	return units
}

// primaryMember picks the album member with the longest text, preferring the
// higher id on equal length. Albums usually caption exactly one member; the
// tie rule only decides between members with no caption at all.
func primaryMember(album []telegram.Message) telegram.Message {
	best := album[0]
	bestLen := utf8.RuneCountInString(best.Text)
	for _, m := range album[1:] {
		n := utf8.RuneCountInString(m.Text)
		if n > bestLen || (n == bestLen && m.ID > best.ID) {
			best = m
			bestLen = n
		}
	}
	return best
}
