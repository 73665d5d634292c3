package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Get("/ws", authMiddleware, websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return
		}
		client := hub.Register(userID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
