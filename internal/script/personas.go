package script

// Speaker is one voice of the show as described to the script model.
type Speaker struct {
	Name        string // label used on every dialogue line
	Role        string
	Description string
}

// Show describes the programme the scripts are written for.
type Show struct {
	Name        string
	Language    string
	Source      string // what the newsletter is, for context
	Speakers    []Speaker
	PauseMarker string
	FinalPause  string
}

// DefaultMinami is the announcer who interviews the newsletter's author.
var DefaultMinami = Speaker{
	Name: "Minami",
	Role: "announcer",
	Description: `A young announcer with an intelligent, composed delivery. Hosts the show, introduces each
topic, asks the questions a curious listener would ask, and keeps the pace moving.`,
}

// DefaultNakajima speaks as the newsletter's author.
var DefaultNakajima = Speaker{
	Name: "Nakajima",
	Role: "author",
	Description: `Satoshi Nakajima (born 1960), engineer, entrepreneur and angel investor. Led development of
Windows 95 and Internet Explorer at Microsoft, founded Xevo, and now heads the Singularity Society.
Explains their own newsletter in plain words, with the investor's and engineer's perspective.`,
}

// DefaultShow returns the weekly newsletter read-along show.
func DefaultShow() Show {
	return Show{
		Name:     "週刊Life is beautiful 拾い読みポッドキャスト",
		Language: "Japanese",
		Source: `"Shukan Life is beautiful", a paid weekly newsletter published every Tuesday since 2011.
It covers engineering-minded management, study habits, new technology, the IT business, startups,
career design and differences between Japan and the US.`,
		Speakers:    []Speaker{DefaultMinami, DefaultNakajima},
		PauseMarker: "[pause 0.6sec]",
		FinalPause:  "[pause 1.0sec]",
	}
}

// WithSpeakerNames renames the show's speakers in order, keeping their
// descriptions. Extra names are appended as plain co-hosts.
func (s Show) WithSpeakerNames(names ...string) Show {
	out := s
	out.Speakers = nil
	for i, name := range names {
		sp := Speaker{Name: name, Role: "co-host"}
		if i < len(s.Speakers) {
			sp = s.Speakers[i]
			sp.Name = name
		}
		out.Speakers = append(out.Speakers, sp)
	}
	return out
}

// SpeakerNames lists the labels the model may use.
func (s Show) SpeakerNames() []string {
	names := make([]string, len(s.Speakers))
	for i, sp := range s.Speakers {
		names[i] = sp.Name
	}
	return names
}
