package mtproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"go.mirrord.dev/internal/telegram"
)

// Client implements telegram.Client over one MTProto session.
type Client struct {
	conn
}

func (c *Client) ResolveChannel(ctx context.Context, name string) (*telegram.Channel, error) {
	_, api, err := c.handles()
	if err != nil {
		return nil, err
	}

	if id, ok := telegram.NumericID(name); ok {
		return resolveByID(ctx, api, id)
	}

	peer, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: name})
	if err != nil {
		if tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID") {
			return nil, telegram.ErrChannelNotFound
		}
		return nil, translate(err)
	}

	ch := firstChannel(peer.Chats)
	if ch == nil {
		return nil, telegram.ErrChannelNotFound
	}
	return convertChannel(ch), nil
}

// resolveByID asks the server for the channel by bare id. The zero access
// hash works for channels the session is a member of; the response carries
// the real hash for later calls.
func resolveByID(ctx context.Context, api *tg.Client, id int64) (*telegram.Channel, error) {
	chats, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: id},
	})
	if err != nil {
		return nil, translate(err)
	}

	ch := firstChannel(chats.GetChats())
	if ch == nil {
		return nil, telegram.ErrChannelNotFound
	}
	return convertChannel(ch), nil
}

func (c *Client) JoinChannel(ctx context.Context, ch *telegram.Channel) error {
	_, api, err := c.handles()
	if err != nil {
		return err
	}

	_, err = api.ChannelsJoinChannel(ctx, inputChannel(ch))
	if err != nil {
		if tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
			return nil
		}
		return translate(err)
	}
	return nil
}

func (c *Client) LatestMessageID(ctx context.Context, ch *telegram.Channel) (int, error) {
	_, api, err := c.handles()
	if err != nil {
		return 0, err
	}

	hist, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  inputPeer(ch),
		Limit: 1,
	})
	if err != nil {
		return 0, translate(err)
	}

	msgs := historyMessages(hist)
	if len(msgs) == 0 {
		return 0, nil
	}
	return msgs[0].GetID(), nil
}

func (c *Client) MessagesAfter(ctx context.Context, ch *telegram.Channel, minID, limit int) ([]telegram.Message, error) {
	_, api, err := c.handles()
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, nil
	}

	// History is served newest first. Anchoring just above the cursor and
	// shifting the window back by the limit selects exactly the next limit
	// messages after it; with minID 0 the window clamps to the channel's
	// oldest messages.
	hist, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:      inputPeer(ch),
		OffsetID:  minID + 1,
		AddOffset: -limit,
		Limit:     limit,
		MinID:     minID,
	})
	if err != nil {
		return nil, translate(err)
	}

	raw := historyMessages(hist)
	out := make([]telegram.Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok || msg.ID <= minID {
			continue
		}
		out = append(out, convertMessage(msg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Client) SendText(ctx context.Context, ch *telegram.Channel, text string, entities []telegram.Entity) (int, error) {
	client, api, err := c.handles()
	if err != nil {
		return 0, err
	}

	rnd, err := client.RandInt64()
	if err != nil {
		return 0, err
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     inputPeer(ch),
		Message:  text,
		RandomID: rnd,
	}
	if len(entities) > 0 {
		req.SetEntities(entitiesToTG(entities))
	}

	upd, err := api.MessagesSendMessage(ctx, req)
	if err != nil {
		return 0, translate(err)
	}
	return sentMessageID(upd), nil
}

func (c *Client) SendFile(ctx context.Context, ch *telegram.Channel, file *telegram.Upload, caption string, entities []telegram.Entity) (int, error) {
	client, api, err := c.handles()
	if err != nil {
		return 0, err
	}
	if file == nil || len(file.Data) == 0 {
		return 0, errors.New("empty upload")
	}

	f, err := uploader.NewUploader(api).FromBytes(ctx, file.Name, file.Data)
	if err != nil {
		return 0, translate(err)
	}

	var media tg.InputMediaClass
	if file.Photo {
		media = &tg.InputMediaUploadedPhoto{File: f}
	} else {
		mime := file.MIME
		if mime == "" {
			mime = "application/octet-stream"
		}
		media = &tg.InputMediaUploadedDocument{
			File:     f,
			MimeType: mime,
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: file.Name},
			},
		}
	}

	rnd, err := client.RandInt64()
	if err != nil {
		return 0, err
	}

	req := &tg.MessagesSendMediaRequest{
		Peer:     inputPeer(ch),
		Media:    media,
		Message:  caption,
		RandomID: rnd,
	}
	if len(entities) > 0 {
		req.SetEntities(entitiesToTG(entities))
	}

	upd, err := api.MessagesSendMedia(ctx, req)
	if err != nil {
		return 0, translate(err)
	}
	return sentMessageID(upd), nil
}

func (c *Client) DownloadMedia(ctx context.Context, media *telegram.MediaRef, maxBytes int64) (*telegram.Upload, error) {
	_, api, err := c.handles()
	if err != nil {
		return nil, err
	}
	if media == nil {
		return nil, errors.New("no media reference")
	}
	if maxBytes > 0 && media.Size > maxBytes {
		return nil, telegram.ErrMediaTooLarge
	}

	var (
		loc   tg.InputFileLocationClass
		name  string
		photo bool
	)
	switch ref := media.Ref.(type) {
	case *tg.Photo:
		typ, _ := largestPhotoType(ref)
		loc = &tg.InputPhotoFileLocation{
			ID:            ref.ID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
			ThumbSize:     typ,
		}
		name = "photo.jpg"
		photo = true
	case *tg.Document:
		loc = &tg.InputDocumentFileLocation{
			ID:            ref.ID,
			AccessHash:    ref.AccessHash,
			FileReference: ref.FileReference,
		}
		name = media.Filename
		if name == "" {
			name = "file.bin"
		}
	default:
		return nil, fmt.Errorf("unsupported media reference %T", media.Ref)
	}

	var buf bytes.Buffer
	if _, err := downloader.NewDownloader().Download(api, loc).Stream(ctx, &buf); err != nil {
		return nil, translate(err)
	}
	// Sizes reported for photos are per-thumbnail estimates; re-check the
	// actual payload.
	if maxBytes > 0 && int64(buf.Len()) > maxBytes {
		return nil, telegram.ErrMediaTooLarge
	}

	return &telegram.Upload{
		Name:  name,
		MIME:  media.MIME,
		Data:  buf.Bytes(),
		Photo: photo,
	}, nil
}
