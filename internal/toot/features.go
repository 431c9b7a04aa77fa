package toot

import "strings"

// MentionCount returns the number of accounts the post mentions.
func (p *Post) MentionCount() int {
	return len(p.Mentions)
}

// HasMinMentions reports whether the post mentions at least n accounts.
// A threshold of zero or below is always satisfied.
func (p *Post) HasMinMentions(n int) bool {
	return n <= 0 || len(p.Mentions) >= n
}

// AttachmentFingerprints returns the blurhashes of all media attachments
// that carry one.
func (p *Post) AttachmentFingerprints() []string {
	var hashes []string
	for _, a := range p.MediaAttachments {
		if a.Blurhash != "" {
			hashes = append(hashes, a.Blurhash)
		}
	}
	return hashes
}

// HasCard reports whether the post carries a preview card.
func (p *Post) HasCard() bool {
	return p.Card != nil && p.Card.Type != ""
}

// CardFingerprint returns the preview card's blurhash. The card only has a
// fingerprint if it also carries an image.
func (p *Post) CardFingerprint() (string, bool) {
	if !p.HasCard() || p.Card.Image == "" || p.Card.Blurhash == "" {
		return "", false
	}
	return p.Card.Blurhash, true
}

// Fingerprints returns every image fingerprint on the post: attachments
// first, then the preview card.
func (p *Post) Fingerprints() []string {
	hashes := p.AttachmentFingerprints()
	if fp, ok := p.CardFingerprint(); ok {
		hashes = append(hashes, fp)
	}
	return hashes
}

// HasFingerprint reports whether fp is one of the post's fingerprints.
func (p *Post) HasFingerprint(fp string) bool {
	for _, h := range p.Fingerprints() {
		if h == fp {
			return true
		}
	}
	return false
}

// ContentContains reports whether the post body contains s literally.
func (p *Post) ContentContains(s string) bool {
	return p.Content != "" && strings.Contains(p.Content, s)
}

// CardContains reports whether any text field of the preview card
// contains s literally.
func (p *Post) CardContains(s string) bool {
	if !p.HasCard() {
		return false
	}
	for _, field := range []string{p.Card.Title, p.Card.URL, p.Card.Description, p.Card.ProviderName} {
		if field != "" && strings.Contains(field, s) {
			return true
		}
	}
	return false
}
