package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/apresai/newsletter-podcaster/internal/segment"
)

func buildSystemPrompt(show Show) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write scripts for the podcast %q, which walks listeners through each issue of a newsletter.\n\n", show.Name)
	fmt.Fprintf(&b, "SOURCE:\n%s\n\n", show.Source)

	b.WriteString("SPEAKERS:\n")
	for _, sp := range show.Speakers {
		fmt.Fprintf(&b, "- %s (%s): %s\n", sp.Name, sp.Role, sp.Description)
	}

	names := strings.Join(show.SpeakerNames(), " and ")
	fmt.Fprintf(&b, `
RULES:
1. Write the whole script in %s.
2. Use only the speaker labels %s. Every line has the form "Name: text".
3. Stay with the source material. Do not invent facts.
4. Sprinkle natural fillers and short reactions, without overdoing it.
5. Put %s between beats to give the listener room.
6. End the final line with %s.
7. The newsletter is long, so it is sent to you one segment at a time. Follow the segment instructions exactly.
8. Output only the dialogue. No headings, no stage directions, no code fences.
`, show.Language, names, show.PauseMarker, show.FinalPause)
	return b.String()
}

func classDirective(show Show, class Class) string {
	host := "the host"
	if len(show.Speakers) > 0 {
		host = show.Speakers[0].Name
	}
	switch class {
	case Opening:
		return fmt.Sprintf(`This is the OPENING segment. Start with the show's opening talk, welcome the listeners and move
into the first topic. Do not summarise at the end and do not introduce the next segment; the next segment
follows seamlessly. Close the segment with %s wrapping up this topic.`, host)
	case Closing:
		return fmt.Sprintf(`This is the FINAL segment. The show is already under way, so begin directly with "next up is..."
style framing and no extra preamble. After the topic, write the show's closing talk: %s thanks the
listeners for staying to the end, the guest says goodbye, and %s signs off until next week.`, host, host)
	default:
		return `This is a MIDDLE segment. The show is already under way, so begin directly with "next up is..."
style framing and no extra preamble. Do not summarise at the end and do not introduce the next segment;
the next segment follows seamlessly.`
	}
}

func buildChunkPrompt(show Show, chunk segment.Chunk, class Class) string {
	return fmt.Sprintf("SEGMENT INDEX: %s\n\n%s\n\nNEWSLETTER CONTENT FOR THIS SEGMENT:\n%s",
		chunk.Index, classDirective(show, class), chunk.Content)
}

var fenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\n(.*?)\n?```\\s*$")

// stripMarkdownFences unwraps a reply that arrived inside one code fence.
func stripMarkdownFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}
