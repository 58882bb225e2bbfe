package views

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"campus-chat/internal/models"
	"campus-chat/internal/repositories"
)

// ErrNotFound is returned when the room or user behind a view does not exist.
var ErrNotFound = errors.New("view subject not found")

const (
	roomDetailMessage  = "Room details retrieve successfully"
	dashboardMessage   = "Homepage details retrieved successfully."
	userProfileMessage = "User profile retrieve successfully"

	dashboardRoomLimit    = 10
	dashboardMessageLimit = 10
	profileRoomLimit      = 10
	profileMessageLimit   = 8
	topTopics             = 5
)

// Reader is the read side of the store the views are built from.
type Reader interface {
	RoomProfile(ctx context.Context, roomID int) (models.RoomProfile, error)
	RoomMessages(ctx context.Context, roomID int) ([]models.MessageProfile, error)
	RoomParticipants(ctx context.Context, roomID int) ([]models.UserMinimal, error)
	SearchRooms(ctx context.Context, q string, limit int) ([]models.RoomMinimal, error)
	TopicMessages(ctx context.Context, q string, limit int) ([]models.MessageMinimal, error)
	TopicsByRoomCount(ctx context.Context) ([]models.Topic, error)
	UserMinimal(ctx context.Context, userID int) (models.UserMinimal, error)
	RoomsOwnedBy(ctx context.Context, userID int, limit int) ([]models.RoomMinimal, error)
	MessagesBy(ctx context.Context, userID int, limit int) ([]models.MessageMinimal, error)
}

var _ Reader = (*repositories.ViewRepo)(nil)

// Builder assembles complete view payloads. It never writes.
type Builder struct {
	reader Reader
}

func NewBuilder(reader Reader) *Builder {
	return &Builder{reader: reader}
}

// RoomDetail builds the room header, its messages oldest first and its participants.
func (b *Builder) RoomDetail(ctx context.Context, roomID int) (models.RoomDetail, error) {
	room, err := b.reader.RoomProfile(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return models.RoomDetail{}, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
		}
		return models.RoomDetail{}, err
	}

	view := models.RoomDetail{Message: roomDetailMessage, Room: room}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Messages, err = b.reader.RoomMessages(gctx, roomID)
		return err
	})
	g.Go(func() (err error) {
		view.Participants, err = b.reader.RoomParticipants(gctx, roomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.RoomDetail{}, err
	}
	view.Messages = nonNil(view.Messages)
	view.Participants = nonNil(view.Participants)
	return view, nil
}

// Dashboard builds the homepage for search query q. The empty query matches everything.
func (b *Builder) Dashboard(ctx context.Context, q string) (models.Dashboard, error) {
	view := models.Dashboard{Message: dashboardMessage}
	var topics []models.Topic

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Rooms, err = b.reader.SearchRooms(gctx, q, dashboardRoomLimit)
		return err
	})
	g.Go(func() (err error) {
		view.RoomMessages, err = b.reader.TopicMessages(gctx, q, dashboardMessageLimit)
		return err
	})
	g.Go(func() (err error) {
		topics, err = b.reader.TopicsByRoomCount(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Dashboard{}, err
	}

	view.Topics, view.TopicsCount = top(topics)
	view.Rooms = nonNil(view.Rooms)
	view.RoomMessages = nonNil(view.RoomMessages)
	return view, nil
}

// UserProfile builds a user's page: owned rooms, latest messages and the topic sidebar.
func (b *Builder) UserProfile(ctx context.Context, userID int) (models.UserProfile, error) {
	user, err := b.reader.UserMinimal(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.UserProfile{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return models.UserProfile{}, err
	}

	view := models.UserProfile{Message: userProfileMessage, User: user}
	var topics []models.Topic

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Rooms, err = b.reader.RoomsOwnedBy(gctx, userID, profileRoomLimit)
		return err
	})
	g.Go(func() (err error) {
		view.RoomMessages, err = b.reader.MessagesBy(gctx, userID, profileMessageLimit)
		return err
	})
	g.Go(func() (err error) {
		topics, err = b.reader.TopicsByRoomCount(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.UserProfile{}, err
	}

	view.Topics, view.TopicsCount = top(topics)
	view.Rooms = nonNil(view.Rooms)
	view.RoomMessages = nonNil(view.RoomMessages)
	return view, nil
}

// top returns the first topTopics topics and the total count.
func top(topics []models.Topic) ([]models.Topic, int) {
	n := len(topics)
	if n > topTopics {
		topics = topics[:topTopics]
	}
	return nonNil(topics), n
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
