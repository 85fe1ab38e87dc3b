package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/auth"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
)

func TestStorage(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	t.Run("Credentials", func(t *testing.T) {
		creds := auth.UserCredentials{
			User: models.User{
				ID:          "user1",
				UserName:    "alice",
				DisplayName: "Alice",
				Presence:    models.Presence{Status: models.StatusOffline},
				ShareStatus: true,
				Account:     models.AccountActive,
			},
			PasswordHash: "hash",
		}

		if err := store.UpsertCredentials(creds); err != nil {
			t.Fatalf("UpsertCredentials failed: %v", err)
		}

		listCreds, err := store.ListCredentials()
		if err != nil {
			t.Fatalf("ListCredentials failed: %v", err)
		}
		if len(listCreds) != 1 {
			t.Errorf("expected 1 credential, got %d", len(listCreds))
		}
		if listCreds[0].ID != creds.ID {
			t.Errorf("expected ID %s, got %s", creds.ID, listCreds[0].ID)
		}
		if listCreds[0].PasswordHash != creds.PasswordHash {
			t.Errorf("expected password hash to round-trip")
		}

		// Accounts still in the created state are filtered out
		pending := auth.UserCredentials{
			User: models.User{
				ID:       "user2",
				UserName: "bob",
				Account:  models.AccountCreated,
			},
		}
		if err := store.UpsertCredentials(pending); err != nil {
			t.Fatalf("UpsertCredentials pending failed: %v", err)
		}

		listCreds, err = store.ListCredentials()
		if err != nil {
			t.Fatalf("ListCredentials failed: %v", err)
		}
		if len(listCreds) != 1 {
			t.Errorf("expected 1 active credential, got %d", len(listCreds))
		}

		listAll, err := store.ListAllCredentials()
		if err != nil {
			t.Fatalf("ListAllCredentials failed: %v", err)
		}
		if len(listAll) != 2 {
			t.Errorf("expected 2 credentials, got %d", len(listAll))
		}
	})

	t.Run("Presence", func(t *testing.T) {
		lastSeen := time.Now().Unix()
		if err := store.UpdateUserPresence("user1", models.StatusBusy, lastSeen); err != nil {
			t.Fatalf("UpdateUserPresence failed: %v", err)
		}

		user, err := store.GetUser("user1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if user.Presence.Status != models.StatusBusy {
			t.Errorf("expected status BUSY, got %s", user.Presence.Status)
		}
		if user.Presence.LastSeen != lastSeen {
			t.Errorf("expected lastSeen %d, got %d", lastSeen, user.Presence.LastSeen)
		}

		if err := store.SetShareStatus("user1", false); err != nil {
			t.Fatalf("SetShareStatus failed: %v", err)
		}
		user, _ = store.GetUser("user1")
		if user.ShareStatus {
			t.Error("expected shareStatus false")
		}

		if err := store.UpdateUserPresence("missing", models.StatusOnline, 0); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Conversations", func(t *testing.T) {
		conv := models.Conversation{
			ID:        "conv1",
			Name:      "General",
			IsGroup:   true,
			CreatedAt: time.Now().UnixNano(),
		}
		if err := store.UpsertConversation(conv); err != nil {
			t.Fatalf("UpsertConversation failed: %v", err)
		}

		got, err := store.GetConversation("conv1")
		if err != nil {
			t.Fatalf("GetConversation failed: %v", err)
		}
		if got.Name != "General" || !got.IsGroup {
			t.Errorf("unexpected conversation: %+v", got)
		}

		if _, err := store.GetConversation("missing"); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DirectConversations", func(t *testing.T) {
		direct := models.Conversation{
			ID:        "dm1",
			CreatedAt: time.Now().UnixNano(),
		}
		first, err := store.CreateDirectConversation(direct, "user1", "user2")
		if err != nil {
			t.Fatalf("CreateDirectConversation failed: %v", err)
		}
		if first.ID != "dm1" {
			t.Errorf("expected id dm1, got %s", first.ID)
		}

		// Same pair in reverse order returns the existing conversation.
		second, err := store.CreateDirectConversation(models.Conversation{ID: "dm2"}, "user2", "user1")
		if err != nil {
			t.Fatalf("CreateDirectConversation dedupe failed: %v", err)
		}
		if second.ID != "dm1" {
			t.Errorf("expected deduplicated id dm1, got %s", second.ID)
		}

		// Both users are enrolled as participants.
		for _, userID := range []string{"user1", "user2"} {
			p, err := store.GetParticipant("dm1", userID)
			if err != nil {
				t.Fatalf("GetParticipant(%s) failed: %v", userID, err)
			}
			if !p.Active() {
				t.Errorf("expected %s to be an active participant", userID)
			}
		}
	})

	t.Run("Participants", func(t *testing.T) {
		joined := time.Now().UnixNano()
		p := models.Participant{
			ConversationID: "conv1",
			UserID:         "user1",
			IsAdmin:        true,
			JoinedAt:       joined,
		}
		if err := store.UpsertParticipant(p); err != nil {
			t.Fatalf("UpsertParticipant failed: %v", err)
		}

		ids, err := store.ConversationIDsForUser("user1")
		if err != nil {
			t.Fatalf("ConversationIDsForUser failed: %v", err)
		}
		found := false
		for _, id := range ids {
			if id == "conv1" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected conv1 in user1's conversations, got %v", ids)
		}

		// Soft leave keeps the record but drops it from the user index.
		p.LeftAt = time.Now().UnixNano()
		if err := store.UpsertParticipant(p); err != nil {
			t.Fatalf("UpsertParticipant leave failed: %v", err)
		}
		left, err := store.GetParticipant("conv1", "user1")
		if err != nil {
			t.Fatalf("GetParticipant after leave failed: %v", err)
		}
		if left.Active() {
			t.Error("expected participant to be inactive after leaving")
		}
		ids, _ = store.ConversationIDsForUser("user1")
		for _, id := range ids {
			if id == "conv1" {
				t.Error("left conversation should not appear in user index")
			}
		}

		// Rejoining reuses the record with leftAt cleared.
		p.LeftAt = 0
		if err := store.UpsertParticipant(p); err != nil {
			t.Fatalf("UpsertParticipant rejoin failed: %v", err)
		}
		rejoined, _ := store.GetParticipant("conv1", "user1")
		if !rejoined.Active() {
			t.Error("expected participant active after rejoining")
		}
	})

	t.Run("Messages", func(t *testing.T) {
		base := time.Now().UnixNano()
		for i := 0; i < 5; i++ {
			msg := models.Message{
				ID:             "msg" + string(rune('1'+i)),
				ConversationID: "conv1",
				SenderID:       "user1",
				Kind:           models.MessageText,
				Content:        "message " + string(rune('1'+i)),
				CreatedAt:      base + int64(i)*int64(time.Second),
			}
			if err := store.UpsertMessage(msg); err != nil {
				t.Fatalf("UpsertMessage failed: %v", err)
			}
		}

		// Newest first, full page.
		msgs, err := store.ListMessages("conv1", 0, 100)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(msgs) != 5 {
			t.Fatalf("expected 5 messages, got %d", len(msgs))
		}
		if msgs[0].ID != "msg5" || msgs[4].ID != "msg1" {
			t.Errorf("expected newest-first order, got %s..%s", msgs[0].ID, msgs[4].ID)
		}

		// Cursor page: strictly older than msg4's timestamp.
		page, err := store.ListMessages("conv1", msgs[1].CreatedAt, 2)
		if err != nil {
			t.Fatalf("ListMessages with cursor failed: %v", err)
		}
		if len(page) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(page))
		}
		if page[0].ID != "msg3" || page[1].ID != "msg2" {
			t.Errorf("expected msg3, msg2, got %s, %s", page[0].ID, page[1].ID)
		}

		// lastMessageAt tracks the newest message.
		conv, _ := store.GetConversation("conv1")
		if conv.LastMessageAt != msgs[0].CreatedAt {
			t.Errorf("expected lastMessageAt %d, got %d", msgs[0].CreatedAt, conv.LastMessageAt)
		}

		// By-id lookup goes through the ref index.
		got, err := store.GetMessage("msg3")
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if got.Content != "message 3" {
			t.Errorf("expected content 'message 3', got %q", got.Content)
		}

		// Deleted messages drop out of listings but stay addressable.
		got.IsDeleted = true
		if err := store.UpdateMessage(got); err != nil {
			t.Fatalf("UpdateMessage failed: %v", err)
		}
		msgs, _ = store.ListMessages("conv1", 0, 100)
		if len(msgs) != 4 {
			t.Errorf("expected 4 visible messages, got %d", len(msgs))
		}
	})

	t.Run("Reactions", func(t *testing.T) {
		reaction := models.Reaction{
			MessageID: "msg1",
			UserID:    "user1",
			Emoji:     "👍",
			CreatedAt: time.Now().Unix(),
		}

		added, err := store.ToggleReaction(reaction)
		if err != nil {
			t.Fatalf("ToggleReaction failed: %v", err)
		}
		if !added {
			t.Error("expected first toggle to add")
		}

		// Second user, same emoji.
		other := reaction
		other.UserID = "user2"
		if _, err := store.ToggleReaction(other); err != nil {
			t.Fatalf("ToggleReaction failed: %v", err)
		}

		reactions, err := store.ListReactions("msg1")
		if err != nil {
			t.Fatalf("ListReactions failed: %v", err)
		}
		if len(reactions) != 2 {
			t.Fatalf("expected 2 reactions, got %d", len(reactions))
		}

		// Toggling again removes, restoring the original count.
		added, err = store.ToggleReaction(reaction)
		if err != nil {
			t.Fatalf("ToggleReaction failed: %v", err)
		}
		if added {
			t.Error("expected second toggle to remove")
		}
		reactions, _ = store.ListReactions("msg1")
		if len(reactions) != 1 {
			t.Errorf("expected 1 reaction after toggle off, got %d", len(reactions))
		}
	})

	t.Run("Notifications", func(t *testing.T) {
		base := time.Now().Unix()
		for i := 0; i < 3; i++ {
			n := models.Notification{
				ID:        "notif" + string(rune('1'+i)),
				UserID:    "user1",
				Type:      models.NotifNewMessage,
				Content:   "hello",
				CreatedAt: base + int64(i),
			}
			if err := store.InsertNotification(n); err != nil {
				t.Fatalf("InsertNotification failed: %v", err)
			}
		}

		notifications, err := store.ListNotifications("user1", 2)
		if err != nil {
			t.Fatalf("ListNotifications failed: %v", err)
		}
		if len(notifications) != 2 {
			t.Fatalf("expected 2 notifications, got %d", len(notifications))
		}
		if notifications[0].ID != "notif3" {
			t.Errorf("expected newest first, got %s", notifications[0].ID)
		}

		if err := store.MarkNotificationRead("user1", "notif2"); err != nil {
			t.Fatalf("MarkNotificationRead failed: %v", err)
		}
		if err := store.MarkNotificationRead("user1", "missing"); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if err := store.MarkAllNotificationsRead("user1"); err != nil {
			t.Fatalf("MarkAllNotificationsRead failed: %v", err)
		}
		notifications, _ = store.ListNotifications("user1", 10)
		for _, n := range notifications {
			if !n.IsRead {
				t.Errorf("expected notification %s to be read", n.ID)
			}
		}
	})

	t.Run("Friendships", func(t *testing.T) {
		f := models.Friendship{
			RequesterID: "user1",
			AddresseeID: "user2",
			Status:      models.FriendPending,
			CreatedAt:   time.Now().Unix(),
		}
		if err := store.UpsertFriendship(f); err != nil {
			t.Fatalf("UpsertFriendship failed: %v", err)
		}

		// Lookup works in either direction.
		got, err := store.GetFriendship("user2", "user1")
		if err != nil {
			t.Fatalf("GetFriendship failed: %v", err)
		}
		if got.RequesterID != "user1" {
			t.Errorf("expected requester user1, got %s", got.RequesterID)
		}

		got.Status = models.FriendAccepted
		if err := store.UpsertFriendship(got); err != nil {
			t.Fatalf("UpsertFriendship accept failed: %v", err)
		}

		friendships, err := store.ListFriendships("user2")
		if err != nil {
			t.Fatalf("ListFriendships failed: %v", err)
		}
		if len(friendships) != 1 {
			t.Fatalf("expected 1 friendship, got %d", len(friendships))
		}
		if friendships[0].Status != models.FriendAccepted {
			t.Errorf("expected ACCEPTED, got %s", friendships[0].Status)
		}
		if friendships[0].Other("user2") != "user1" {
			t.Errorf("expected peer user1, got %s", friendships[0].Other("user2"))
		}

		if err := store.DeleteFriendship("user1", "user2"); err != nil {
			t.Fatalf("DeleteFriendship failed: %v", err)
		}
		if _, err := store.GetFriendship("user1", "user2"); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("PushSubscriptions", func(t *testing.T) {
		sub := models.PushSubscription{
			UserID:    "user1",
			Endpoint:  "https://push.example.com/sub/abc",
			P256dh:    "p256dh-key",
			Auth:      "auth-secret",
			CreatedAt: time.Now().Unix(),
		}
		if err := store.UpsertPushSubscription(sub); err != nil {
			t.Fatalf("UpsertPushSubscription failed: %v", err)
		}

		subs, err := store.ListPushSubscriptions("user1")
		if err != nil {
			t.Fatalf("ListPushSubscriptions failed: %v", err)
		}
		if len(subs) != 1 || subs[0].Endpoint != sub.Endpoint {
			t.Fatalf("unexpected subscriptions: %+v", subs)
		}

		if err := store.DeletePushSubscription("user1", sub.Endpoint); err != nil {
			t.Fatalf("DeletePushSubscription failed: %v", err)
		}
		subs, _ = store.ListPushSubscriptions("user1")
		if len(subs) != 0 {
			t.Errorf("expected no subscriptions, got %d", len(subs))
		}
	})

	t.Run("Tokens", func(t *testing.T) {
		userID := "user2"
		tokenHash := "token_hash_123"

		if err := store.UpsertToken(userID, tokenHash); err != nil {
			t.Fatalf("UpsertToken failed: %v", err)
		}

		tokens, err := store.ListTokens()
		if err != nil {
			t.Fatalf("ListTokens failed: %v", err)
		}
		if tokens[tokenHash] != userID {
			t.Errorf("expected userID %s for token %s, got %s", userID, tokenHash, tokens[tokenHash])
		}

		if err := store.DeleteToken(tokenHash); err != nil {
			t.Fatalf("DeleteToken failed: %v", err)
		}

		tokens, err = store.ListTokens()
		if err != nil {
			t.Fatalf("ListTokens failed: %v", err)
		}
		if _, ok := tokens[tokenHash]; ok {
			t.Errorf("expected token to be deleted")
		}
	})

	t.Run("RegistrationTokens", func(t *testing.T) {
		if err := store.UpsertRegistrationToken("user2", "bcrypt_hash"); err != nil {
			t.Fatalf("UpsertRegistrationToken failed: %v", err)
		}

		hashes, err := store.ListRegistrationTokens()
		if err != nil {
			t.Fatalf("ListRegistrationTokens failed: %v", err)
		}
		if hashes["user2"] != "bcrypt_hash" {
			t.Errorf("expected hash for user2, got %q", hashes["user2"])
		}

		if err := store.DeleteRegistrationToken("user2"); err != nil {
			t.Fatalf("DeleteRegistrationToken failed: %v", err)
		}
		hashes, _ = store.ListRegistrationTokens()
		if _, ok := hashes["user2"]; ok {
			t.Error("expected registration token to be deleted")
		}
	})

	t.Run("FileMetadata", func(t *testing.T) {
		meta := FileMetadata{
			ID:             "file1",
			Name:           "photo.png",
			MimeType:       "image/png",
			Size:           1024,
			CreatedAt:      time.Now().Unix(),
			UserID:         "user1",
			ConversationID: "conv1",
		}
		if err := store.UpsertFileMetadata(meta); err != nil {
			t.Fatalf("UpsertFileMetadata failed: %v", err)
		}

		got, err := store.GetFileMetadata("file1")
		if err != nil {
			t.Fatalf("GetFileMetadata failed: %v", err)
		}
		if got.Name != meta.Name || got.MimeType != meta.MimeType {
			t.Errorf("unexpected metadata: %+v", got)
		}

		if _, err := store.GetFileMetadata("missing"); err != models.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
