package parser

import (
	"fmt"
	"strings"
)

// PlayerNumber identifies one of the two sides of a battle.
type PlayerNumber int

// Opponent returns the other side.
func (p PlayerNumber) Opponent() PlayerNumber {
	if p == 1 {
		return 2
	}
	return 1
}

// Pokemon is one combatant. Identity is (Name, Owner); Nickname is how the
// log refers to it in position references. HP and LastDelta are mutated only
// by the HPLedger, in log order.
type Pokemon struct {
	Name      string // canonical species
	Nickname  string
	Owner     PlayerNumber
	HP        float64
	LastDelta float64
}

func (p *Pokemon) String() string {
	return fmt.Sprintf("p%d %s (%s)", p.Owner, p.Name, p.Nickname)
}

type dirKey struct {
	owner PlayerNumber
	nick  string
}

// Directory holds every combatant discovered in the preview and in entrance
// lines, deduplicated and nickname-resolved.
type Directory struct {
	entities  []*Pokemon
	byNick    map[dirKey]*Pokemon
	ambiguous map[dirKey]bool
}

// Species whose presence in a details string marks a disguise form. The
// canonical name collapses to the marker itself; a later reveal line may
// re-nickname the entry.
var disguiseMarkers = []string{"Zoroark", "Zorua"}

func normalizeSpecies(species string) string {
	for _, marker := range disguiseMarkers {
		if strings.Contains(species, marker) {
			return marker
		}
	}
	return species
}

// speciesFromDetails extracts the species from a details field like
// "Garchomp, L84, F, shiny".
func speciesFromDetails(details string) string {
	if i := strings.IndexByte(details, ','); i >= 0 {
		details = details[:i]
	}
	return strings.TrimSpace(details)
}

// parsePosition splits a position reference like "p1a: Skarm" into the
// owning player and the nickname. The slot letter is not part of identity.
func parsePosition(ref string) (PlayerNumber, string, error) {
	if len(ref) < 2 || ref[0] != 'p' {
		return 0, "", fmt.Errorf("bad position reference %q", ref)
	}
	var owner PlayerNumber
	switch ref[1] {
	case '1':
		owner = 1
	case '2':
		owner = 2
	default:
		return 0, "", fmt.Errorf("bad player in position reference %q", ref)
	}
	nick := ref[2:]
	if i := strings.Index(nick, ": "); i >= 0 {
		nick = nick[i+2:]
	} else if i := strings.IndexByte(nick, ':'); i >= 0 {
		nick = nick[i+1:]
	}
	return owner, strings.TrimSpace(nick), nil
}

var entranceCommands = map[string]bool{"switch": true, "drag": true, "replace": true}

// BuildDirectory discovers every combatant in the raw log. Preview entries
// (species only) are superseded by entrance entries when the preview species
// is a literal substring of the entrance species, which resolves unspecified
// forms. Duplicates by (species, owner) collapse to the record carrying a
// real nickname.
func BuildDirectory(raw string) (*Directory, error) {
	d := &Directory{
		byNick:    make(map[dirKey]*Pokemon),
		ambiguous: make(map[dirKey]bool),
	}

	eachRawLine(raw, func(text string) {
		cmd := lineCommand(text)
		switch {
		case cmd == "poke":
			d.addPreview(text)
		case entranceCommands[cmd]:
			d.addEntrance(text, cmd == "replace")
		}
	})

	return d, nil
}

// addPreview handles "|poke|p1|Garchomp, F|item".
func (d *Directory) addPreview(text string) {
	parts := strings.Split(text, "|")
	if len(parts) < 4 {
		return
	}
	owner, _, err := parsePosition(parts[2])
	if err != nil {
		return
	}
	species := normalizeSpecies(speciesFromDetails(parts[3]))
	if species == "" {
		return
	}
	if d.find(owner, species) != nil {
		return
	}
	d.register(&Pokemon{Name: species, Nickname: species, Owner: owner, HP: 100})
}

// addEntrance handles "|switch|p1a: Skarm|Skarmory, F|100/100" and friends.
func (d *Directory) addEntrance(text string, reveal bool) {
	parts := strings.Split(text, "|")
	if len(parts) < 4 {
		return
	}
	owner, nick, err := parsePosition(parts[2])
	if err != nil || nick == "" {
		return
	}
	species := normalizeSpecies(speciesFromDetails(parts[3]))
	if species == "" {
		return
	}

	// Exact species already known: prefer the real nickname.
	if existing := d.find(owner, species); existing != nil {
		if reveal || existing.Nickname == existing.Name {
			d.renick(existing, nick)
		}
		return
	}

	// A preview entry with a partial form name is superseded by the full
	// in-battle form, e.g. "Urshifu" resolved to "Urshifu-Rapid-Strike".
	for _, e := range d.entities {
		if e.Owner == owner && e.Nickname == e.Name && e.Name != species && strings.Contains(species, e.Name) {
			e.Name = species
			d.renick(e, nick)
			return
		}
	}

	d.register(&Pokemon{Name: species, Nickname: nick, Owner: owner, HP: 100})
}

func (d *Directory) find(owner PlayerNumber, species string) *Pokemon {
	for _, e := range d.entities {
		if e.Owner == owner && e.Name == species {
			return e
		}
	}
	return nil
}

func (d *Directory) register(p *Pokemon) {
	d.entities = append(d.entities, p)
	d.mapNick(p, p.Nickname)
}

// renick points a new nickname at an existing entry. The old nickname stays
// mapped so earlier references in the same log keep resolving.
func (d *Directory) renick(p *Pokemon, nick string) {
	if nick == p.Nickname {
		return
	}
	p.Nickname = nick
	d.mapNick(p, nick)
}

func (d *Directory) mapNick(p *Pokemon, nick string) {
	k := dirKey{owner: p.Owner, nick: nick}
	if existing, ok := d.byNick[k]; ok && existing != p {
		d.ambiguous[k] = true
		return
	}
	d.byNick[k] = p
}

// Resolve maps a position reference from a battle line to its entity. An
// unknown nickname creates a new entity on the spot; a nickname claimed by
// two irreconcilable entries surfaces a DirectoryBuildError instead of a
// guess.
func (d *Directory) Resolve(ref string) (*Pokemon, error) {
	owner, nick, err := parsePosition(ref)
	if err != nil {
		return nil, err
	}
	return d.resolveNick(owner, nick)
}

func (d *Directory) resolveNick(owner PlayerNumber, nick string) (*Pokemon, error) {
	k := dirKey{owner: owner, nick: nick}
	if d.ambiguous[k] {
		return nil, &DirectoryBuildError{Owner: owner, Ref: nick}
	}
	if p, ok := d.byNick[k]; ok {
		return p, nil
	}
	// The literal reference may be a canonical species name rather than a
	// nickname.
	if p := d.find(owner, normalizeSpecies(nick)); p != nil {
		return p, nil
	}
	p := &Pokemon{Name: normalizeSpecies(nick), Nickname: nick, Owner: owner, HP: 100}
	d.register(p)
	return p, nil
}

// Team returns the entities owned by one player, in discovery order.
func (d *Directory) Team(owner PlayerNumber) []*Pokemon {
	var team []*Pokemon
	for _, e := range d.entities {
		if e.Owner == owner {
			team = append(team, e)
		}
	}
	return team
}

// All returns every entity in discovery order.
func (d *Directory) All() []*Pokemon {
	return d.entities
}
