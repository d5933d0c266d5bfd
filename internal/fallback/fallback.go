// Package fallback holds the built-in dataset served when neither the
// device nor the remote data tree has anything to show.
package fallback

import (
	"time"

	"github.com/wearesierraleone/frontend/internal/models"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

var posts = []models.Post{
	{
		ID:        "fallback1",
		Title:     "Improving School Infrastructure in Freetown",
		Body:      "Many schools in Freetown need urgent repairs and upgrades. Children are studying in classrooms with leaking roofs during the rainy season. We need a coordinated effort to improve educational infrastructure.",
		Category:  "education",
		Timestamp: mustTime("2025-05-10T09:30:00Z"),
		Status:    models.PostApproved,
	},
	{
		ID:        "fallback2",
		Title:     "Healthcare Access in Rural Communities",
		Body:      "Access to healthcare remains a serious challenge in rural Sierra Leone. Some villages require residents to travel more than 20km to reach the nearest clinic. Mobile healthcare units could help address this gap.",
		Category:  "health",
		Timestamp: mustTime("2025-05-08T14:15:00Z"),
		Status:    models.PostApproved,
	},
	{
		ID:        "fallback3",
		Title:     "Youth Unemployment Solutions",
		Body:      "Youth unemployment remains one of our biggest challenges. We need vocational training centers in every district that focus on practical skills that match market demands.",
		Category:  "youth",
		Timestamp: mustTime("2025-05-06T11:20:00Z"),
		Status:    models.PostApproved,
	},
}

// Posts returns a copy of the fallback posts, newest first.
func Posts() []models.Post {
	return append([]models.Post(nil), posts...)
}

// Post looks up one fallback post by id.
func Post(id string) (models.Post, bool) {
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return models.Post{}, false
}

// Comments has no built-in content; readers get an empty list.
func Comments(string) []models.Comment { return nil }

// Votes has no built-in content; readers get a zero tally.
func Votes(string) models.VoteTally { return models.VoteTally{} }
