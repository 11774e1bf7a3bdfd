package rooms

import (
	"net/http"
	"sort"

	"github.com/go-chi/render"

	"notify-collab/collab"
)

type roomSummary struct {
	NoteID       string `json:"noteId"`
	Participants int    `json:"participants"`
}

// HandleList returns the currently active note rooms and their connection
// counts.
func HandleList(tracker *collab.Rooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := tracker.Snapshot()
		summaries := make([]roomSummary, 0, len(snapshot))
		for noteID, participants := range snapshot {
			summaries = append(summaries, roomSummary{NoteID: noteID, Participants: participants})
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].NoteID < summaries[j].NoteID })
		render.JSON(w, r, summaries)
	}
}
