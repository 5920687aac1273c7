package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// AnnouncementType is the type tag every announcement carries
const AnnouncementType = "screen_share_announcement"

// MaxMessageSize is the maximum UDP payload size (stay under MTU)
const MaxMessageSize = 1024

// ErrNotAnnouncement is returned for datagrams that are not screen-share announcements
var ErrNotAnnouncement = errors.New("discovery: not an announcement")

// Announcement is the UDP broadcast payload (JSON encoded)
type Announcement struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	VideoPort int    `json:"video_port"`
	// ID lets a process ignore its own broadcasts; peers that omit it are fine
	ID string `json:"id,omitempty"`
}

// CommandAddr returns ip:port of the server's command channel
func (a Announcement) CommandAddr() string {
	return net.JoinHostPort(a.IP, fmt.Sprint(a.Port))
}

// Marshal encodes the announcement, filling in the type tag
func (a Announcement) Marshal() ([]byte, error) {
	a.Type = AnnouncementType
	return json.Marshal(a)
}

// ParseAnnouncement decodes a datagram. Missing ip and ports fall back to
// the sender address and the given defaults.
func ParseAnnouncement(data []byte, from *net.UDPAddr, defaultPort, defaultVideoPort int) (Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return Announcement{}, fmt.Errorf("%w: %v", ErrNotAnnouncement, err)
	}
	if a.Type != AnnouncementType {
		return Announcement{}, fmt.Errorf("%w: type %q", ErrNotAnnouncement, a.Type)
	}
	if a.IP == "" && from != nil {
		a.IP = from.IP.String()
	}
	if a.IP == "" {
		return Announcement{}, fmt.Errorf("%w: no ip", ErrNotAnnouncement)
	}
	if a.Name == "" {
		a.Name = "Unknown"
	}
	if a.Port == 0 {
		a.Port = defaultPort
	}
	if a.VideoPort == 0 {
		a.VideoPort = defaultVideoPort
	}
	return a, nil
}
