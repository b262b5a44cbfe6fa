package sealbox

import (
	"context"
)

// GetEmails fetches and decrypts every email in the inbox. Each email
// is recorded with the inbox tracker, so emails first discovered here
// still reach watchers and waits exactly once.
func (i *Inbox) GetEmails(ctx context.Context) ([]*Email, error) {
	envelopes, err := i.client.apiClient.ListEmails(ctx, i.emailAddress)
	if err != nil {
		return nil, wrapError(err)
	}

	emails := make([]*Email, 0, len(envelopes))
	for _, env := range envelopes {
		email, err := i.decryptEmail(ctx, env)
		if err != nil {
			return nil, err
		}
		i.client.track(i, email)
		emails = append(emails, email)
	}
	return emails, nil
}

// GetEmailsMetadata fetches the listing view of the inbox without
// email bodies or attachments.
func (i *Inbox) GetEmailsMetadata(ctx context.Context) ([]*EmailMetadata, error) {
	entries, err := i.client.apiClient.ListEmailMetadata(ctx, i.emailAddress)
	if err != nil {
		return nil, wrapError(err)
	}

	metadata := make([]*EmailMetadata, 0, len(entries))
	for _, entry := range entries {
		m, err := i.decryptMetadata(entry)
		if err != nil {
			return nil, err
		}
		metadata = append(metadata, m)
	}
	return metadata, nil
}

// GetEmail fetches and decrypts one email by id, recording it with the
// inbox tracker.
func (i *Inbox) GetEmail(ctx context.Context, emailID string) (*Email, error) {
	envelope, err := i.client.apiClient.GetEmail(ctx, i.emailAddress, emailID)
	if err != nil {
		return nil, wrapError(err)
	}

	email, err := i.decryptEmail(ctx, envelope)
	if err != nil {
		return nil, err
	}
	i.client.track(i, email)
	return email, nil
}

// GetRawEmail fetches and decrypts the raw RFC 5322 source of one
// email. Use ParseRawMessage to break it into headers and parts.
func (i *Inbox) GetRawEmail(ctx context.Context, emailID string) (string, error) {
	resp, err := i.client.apiClient.GetRawEmail(ctx, i.emailAddress, emailID)
	if err != nil {
		return "", wrapError(err)
	}

	raw, err := i.verifyAndOpen(emailID, resp.EncryptedRaw)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// MarkEmailAsRead marks one email as read on the gateway.
func (i *Inbox) MarkEmailAsRead(ctx context.Context, emailID string) error {
	return wrapError(i.client.apiClient.MarkEmailRead(ctx, i.emailAddress, emailID))
}

// DeleteEmail deletes one email from the gateway and forgets it
// locally, so the local sync fingerprint tracks the deletion.
func (i *Inbox) DeleteEmail(ctx context.Context, emailID string) error {
	if err := i.client.apiClient.DeleteEmail(ctx, i.emailAddress, emailID); err != nil {
		return wrapError(err)
	}

	i.client.mu.RLock()
	tr := i.client.trackers[i.inboxHash]
	i.client.mu.RUnlock()
	if tr != nil {
		tr.forget(emailID)
	}
	return nil
}
