package flatfile

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wearesierraleone/frontend/internal/models"
)

// SavePost writes posts/<id>.json. Approved posts are listed in the posts
// index and in the legacy approved.json.
func (t *Tree) SavePost(p models.Post) error {
	if err := checkID("post", p.ID); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	file := p.ID + ".json"
	if err := t.write("posts/"+file, p); err != nil {
		return err
	}
	if p.Status != models.PostApproved {
		return nil
	}
	if err := t.addToIndex("posts/index.json", file); err != nil {
		return err
	}

	var approved []models.Post
	_, err := t.read("approved.json", &approved)
	if err == nil {
		replaced := false
		for i := range approved {
			if approved[i].ID == p.ID {
				approved[i], replaced = p, true
			}
		}
		if !replaced {
			approved = append(approved, p)
		}
		err = t.write("approved.json", approved)
	}
	t.legacy("approved.json", err)
	return nil
}

// Post reads posts/<id>.json.
func (t *Tree) Post(id string) (models.Post, bool, error) {
	var p models.Post
	if err := checkID("post", id); err != nil {
		return p, false, err
	}
	ok, err := t.read("posts/"+id+".json", &p)
	return p, ok, err
}

// AddComment stores a comment as comments/<postId>/comment-<id>.json, lists
// it in that directory's index and appends it to both aggregate files.
func (t *Tree) AddComment(c models.Comment) (models.Comment, error) {
	if c.ID == "" {
		c.ID = "comment-" + uuid.NewString()
	}
	if err := checkID("post", c.PostID); err != nil {
		return c, err
	}
	if err := checkID("comment", c.ID); err != nil {
		return c, err
	}
	if c.Status == "" {
		c.Status = models.CommentApproved
	}
	c.Source = ""
	c.LocalTimestamp = ""

	t.mu.Lock()
	defer t.mu.Unlock()

	dir := "comments/" + c.PostID + "/"
	file := "comment-" + c.ID + ".json"
	if err := t.write(dir+file, c); err != nil {
		return c, err
	}
	if err := t.addToIndex(dir+"index.json", file); err != nil {
		return c, err
	}

	combined := "comments/" + c.PostID + ".json"
	var list []models.Comment
	_, err := t.read(combined, &list)
	if err == nil {
		err = t.write(combined, append(list, c))
	}
	t.legacy(combined, err)

	var all map[string][]models.Comment
	_, err = t.read("comments.json", &all)
	if err == nil {
		if all == nil {
			all = make(map[string][]models.Comment)
		}
		all[c.PostID] = append(all[c.PostID], c)
		err = t.write("comments.json", all)
	}
	t.legacy("comments.json", err)
	return c, nil
}

// SetCommentStatus changes one comment's status in every file that holds
// it. It reports false when the comment does not exist.
func (t *Tree) SetCommentStatus(postID, commentID string, status models.CommentStatus) (bool, error) {
	if err := checkID("post", postID); err != nil {
		return false, err
	}
	if err := checkID("comment", commentID); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rel := "comments/" + postID + "/comment-" + commentID + ".json"
	var c models.Comment
	ok, err := t.read(rel, &c)
	if err != nil || !ok {
		return false, err
	}
	c.Status = status
	if err := t.write(rel, c); err != nil {
		return false, err
	}

	combined := "comments/" + postID + ".json"
	var list []models.Comment
	if found, err := t.read(combined, &list); found && err == nil {
		if i := models.FindComment(list, commentID); i >= 0 {
			list[i].Status = status
			t.legacy(combined, t.write(combined, list))
		}
	}
	var all map[string][]models.Comment
	if found, err := t.read("comments.json", &all); found && err == nil {
		if i := models.FindComment(all[postID], commentID); i >= 0 {
			all[postID][i].Status = status
			t.legacy("comments.json", t.write("comments.json", all))
		}
	}
	return true, nil
}

// Comments lists the stored comments of a post, oldest first.
func (t *Tree) Comments(postID string) ([]models.Comment, error) {
	if err := checkID("post", postID); err != nil {
		return nil, err
	}
	var idx models.IndexFile
	if _, err := t.read("comments/"+postID+"/index.json", &idx); err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(idx.Files))
	for _, f := range idx.Files {
		var c models.Comment
		if ok, err := t.read("comments/"+postID+"/"+f, &c); err == nil && ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ApplyCommentList reconciles a whole comment forest, the shape older
// clients send for replies and flags. Comments not stored yet are added;
// stored ones take the status from the list.
func (t *Tree) ApplyCommentList(postID string, forest []models.Comment) (added, changed int, err error) {
	existing, err := t.Comments(postID)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range models.Flatten(forest) {
		c.PostID = postID
		if i := models.FindComment(existing, c.ID); c.ID != "" && i >= 0 {
			if c.Status == "" || c.Status == existing[i].Status {
				continue
			}
			if _, err := t.SetCommentStatus(postID, c.ID, c.Status); err != nil {
				return added, changed, err
			}
			changed++
			continue
		}
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if _, err := t.AddComment(c); err != nil {
			return added, changed, err
		}
		added++
	}
	return added, changed, nil
}

// AddVote appends the event to upvotes/ or downvotes/ and refreshes the
// derived tallies in votes/<postId>.json and votes.json. The returned
// tally is counted from the event files.
func (t *Tree) AddVote(v models.Vote) (models.VoteTally, error) {
	if err := checkID("post", v.PostID); err != nil {
		return models.VoteTally{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	dir := "downvotes/"
	if v.Type == models.VoteUp {
		dir = "upvotes/"
	}
	rel := dir + v.PostID + ".json"
	var events []models.Vote
	if _, err := t.read(rel, &events); err != nil {
		return models.VoteTally{}, err
	}
	if err := t.write(rel, append(events, v)); err != nil {
		return models.VoteTally{}, err
	}

	tally, err := t.countVotes(v.PostID)
	if err != nil {
		return tally, err
	}
	t.legacy("votes/"+v.PostID+".json", t.write("votes/"+v.PostID+".json", tally))

	var all map[string]models.VoteTally
	_, err = t.read("votes.json", &all)
	if err == nil {
		if all == nil {
			all = make(map[string]models.VoteTally)
		}
		all[v.PostID] = tally
		err = t.write("votes.json", all)
	}
	t.legacy("votes.json", err)
	return tally, nil
}

// Votes counts the vote events of a post.
func (t *Tree) Votes(postID string) (models.VoteTally, error) {
	if err := checkID("post", postID); err != nil {
		return models.VoteTally{}, err
	}
	return t.countVotes(postID)
}

func (t *Tree) countVotes(postID string) (models.VoteTally, error) {
	var up, down []models.Vote
	if _, err := t.read("upvotes/"+postID+".json", &up); err != nil {
		return models.VoteTally{}, err
	}
	if _, err := t.read("downvotes/"+postID+".json", &down); err != nil {
		return models.VoteTally{}, err
	}
	return models.VoteTally{Up: len(up), Down: len(down)}, nil
}

// CreatePetition writes petitions/<postId>.json, its signatures file and
// the legacy petitions.json entry. An existing petition is left alone and
// reported with created=false.
func (t *Tree) CreatePetition(p models.Petition) (created bool, err error) {
	if err := checkID("post", p.PostID); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rel := "petitions/" + p.PostID + ".json"
	var existing models.Petition
	if ok, err := t.read(rel, &existing); err != nil || ok {
		return false, err
	}
	if p.Signatures == nil {
		p.Signatures = []models.Signature{}
	}
	if err := t.write(rel, p); err != nil {
		return false, err
	}
	if err := t.write("signatures/"+p.PostID+".json", p.Signatures); err != nil {
		return true, err
	}

	var all map[string]models.Petition
	_, err = t.read("petitions.json", &all)
	if err == nil {
		if all == nil {
			all = make(map[string]models.Petition)
		}
		all[p.PostID] = p
		err = t.write("petitions.json", all)
	}
	t.legacy("petitions.json", err)
	t.log.Info("petition created", zap.String("postId", p.PostID), zap.String("id", p.ID))
	return true, nil
}

// Petition reads a petition with its current signatures.
func (t *Tree) Petition(postID string) (models.Petition, bool, error) {
	var p models.Petition
	if err := checkID("post", postID); err != nil {
		return p, false, err
	}
	ok, err := t.read("petitions/"+postID+".json", &p)
	if err != nil || !ok {
		return p, ok, err
	}
	var sigs []models.Signature
	if found, err := t.read("signatures/"+postID+".json", &sigs); err == nil && found {
		p.Signatures = sigs
	}
	return p, true, nil
}

// AddSignature records a signature, one per anonymous id. It returns the
// new signature count.
func (t *Tree) AddSignature(sig models.Signature) (int, error) {
	if err := checkID("post", sig.PostID); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var p models.Petition
	ok, err := t.read("petitions/"+sig.PostID+".json", &p)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, models.NewNotFoundError("petition", sig.PostID)
	}

	rel := "signatures/" + sig.PostID + ".json"
	var sigs []models.Signature
	if _, err := t.read(rel, &sigs); err != nil {
		return 0, err
	}
	for _, s := range sigs {
		if sig.AnonID != "" && s.AnonID == sig.AnonID {
			return len(sigs), models.NewValidationError("already signed this petition")
		}
	}
	sigs = append(sigs, sig)
	if err := t.write(rel, sigs); err != nil {
		return 0, err
	}
	return len(sigs), nil
}

// AddReport writes reports/report-<id>.json.
func (t *Tree) AddReport(r models.Report) error {
	if err := checkID("report", r.ID); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write("reports/report-"+r.ID+".json", r)
}
