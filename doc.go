// Package sealbox is the Go client for Sealbox, a receive-only SMTP
// gateway for QA and testing. Inboxes are temporary and, by default,
// end-to-end encrypted with a post-quantum suite (ML-KEM-768 +
// ML-DSA-65 + AES-256-GCM).
//
// A Client manages inboxes and one delivery strategy (SSE push,
// adaptive polling, or auto). Every email surfaced by the SDK has had
// its envelope signature verified against the server signing key
// pinned at inbox creation, and its content decrypted locally; key
// material never leaves the process.
//
// Typical use:
//
//	client, err := sealbox.New(os.Getenv("SEALBOX_API_KEY"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	inbox, err := client.CreateInbox(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	email, err := inbox.WaitForEmail(ctx, sealbox.WithSubject("Welcome"))
package sealbox
