package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/karmafeed/karmafeed/internal/client"
	"github.com/karmafeed/karmafeed/internal/model"
)

var usernames = []string{
	"alice",
	"bob",
	"carol",
	"dave",
	"erin",
}

var posts = []string{
	"Just shipped the comment threading rewrite. Replies can nest as deep as you like now.",
	"Hot take: leaderboards make every community 10% more fun and 30% more chaotic.",
	"What's everyone reading this week? Drop recommendations below.",
	"TIL you get 5 karma when someone likes your post but only 1 for a comment like.",
	"The feed felt empty so I am fixing that personally.",
	"Does anyone else refresh the leaderboard every 30 seconds or is that just me?",
}

var comments = []string{
	"Great post, this is exactly what the feed needed.",
	"Strong disagree, but I respect the commitment.",
	"Can you share more details?",
	"This reminds me of the early days of the internet.",
	"Came for the karma, stayed for the threads.",
	"Replying just to test how deep this nesting goes.",
	"Interesting take. I wonder how this scales.",
	"Upvoting for visibility.",
	"I tried this and it works great!",
	"Would love a follow-up on this.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "Karmafeed server URL")
	flag.Parse()

	log.Printf("Seeding %s...\n", *baseURL)

	ctx := context.Background()
	c := client.New(*baseURL)

	// Create all users first so likes and comments can pick authors
	// freely.
	var users []model.User
	for _, name := range usernames {
		user, err := c.GetOrCreateUser(ctx, name)
		if err != nil {
			log.Fatalf("create user %s: %v", name, err)
		}
		log.Printf("✓ User: %s (#%d)", user.Username, user.ID)
		users = append(users, user)
	}

	// Posts from random users.
	var postIDs []int64
	for _, content := range posts {
		author := users[rand.Intn(len(users))]
		post, err := c.CreatePost(ctx, content, author.ID)
		if err != nil {
			log.Printf("✗ Failed to post: %v", err)
			continue
		}
		postIDs = append(postIDs, post.ID)
		log.Printf("✓ Post #%d by %s", post.ID, author.Username)

		// Small delay to spread out created_at times
		time.Sleep(50 * time.Millisecond)
	}

	// Comments with occasional reply chains, so the seeded feed shows
	// real nesting.
	for _, postID := range postIDs {
		numComments := rand.Intn(4) + 1
		for i := 0; i < numComments; i++ {
			author := users[rand.Intn(len(users))]
			comment, err := c.CreateComment(ctx, postID, nil, comments[rand.Intn(len(comments))], author.ID)
			if err != nil {
				log.Printf("✗ Failed to comment: %v", err)
				continue
			}
			log.Printf("✓ Comment #%d on post #%d (by %s)", comment.ID, postID, author.Username)

			parent := comment.ID
			for depth := 0; depth < 3 && rand.Float32() < 0.4; depth++ {
				replier := users[rand.Intn(len(users))]
				reply, err := c.CreateComment(ctx, postID, &parent, comments[rand.Intn(len(comments))], replier.ID)
				if err != nil {
					log.Printf("✗ Failed to reply: %v", err)
					break
				}
				log.Printf("  ↳ Reply #%d (by %s)", reply.ID, replier.Username)
				parent = reply.ID
			}
		}
	}

	// Likes on random posts, which also populates the leaderboard.
	liked := 0
	for _, postID := range postIDs {
		if rand.Float32() < 0.7 {
			if err := c.LikePost(ctx, postID); err == nil {
				liked++
			}
		}
	}
	log.Printf("✓ Liked %d posts", liked)

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:  %d\n", len(users))
	fmt.Printf("Posts:  %d\n", len(postIDs))
	fmt.Println("\nBrowse with: karmafeed feed")
}
