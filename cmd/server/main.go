package main

import (
	"log"

	"github.com/damain/planning-poker/internal/config"
	"github.com/damain/planning-poker/internal/database"
	"github.com/damain/planning-poker/internal/feed"
	"github.com/damain/planning-poker/internal/handlers"
	"github.com/damain/planning-poker/internal/roomstate"
	"github.com/damain/planning-poker/internal/services"

	_ "github.com/damain/planning-poker/docs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Planning Poker API
// @version         1.0
// @description     Rooms, stories, votes and presence for agile estimation, with a live change feed per room
// @host            localhost:8080
// @BasePath        /

func main() {
	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	bus := feed.NewBus()

	roomService := services.NewRoomService(db, bus)
	storyService := services.NewStoryService(db, bus, roomService)
	voteService := services.NewVoteService(db, bus, roomService)
	presenceService := services.NewPresenceService(db, bus, cfg.PresenceWindow)
	store := services.NewStore(roomService, storyService, voteService, presenceService)

	manager := roomstate.NewManager(store, bus)
	defer manager.Stop()

	roomHandler := handlers.NewRoomHandler(roomService, manager)
	storyHandler := handlers.NewStoryHandler(storyService)
	voteHandler := handlers.NewVoteHandler(voteService, roomService)
	presenceHandler := handlers.NewPresenceHandler(presenceService, roomService)
	wsHandler := handlers.NewWSHandler(roomService, store, bus, manager, cfg.HeartbeatInterval)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigins},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/ws/room/:code", wsHandler.HandleRoomWebSocket)

	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.POST("/join", roomHandler.JoinRoom)
			rooms.GET("/:code", roomHandler.GetRoom)
			rooms.GET("/:code/state", roomHandler.GetRoomState)
			rooms.PUT("/:code/current-story", roomHandler.SelectStory)
			rooms.PUT("/:code/show-votes", roomHandler.ToggleShowVotes)
			rooms.PUT("/:code/voting-scale", roomHandler.SetVotingScale)

			rooms.POST("/:code/stories", storyHandler.AddStory)
			rooms.GET("/:code/stories", storyHandler.ListStories)
			rooms.POST("/:code/stories/anonymize", storyHandler.AnonymizeAllStories)

			rooms.POST("/:code/votes", voteHandler.CastVote)
			rooms.GET("/:code/votes", voteHandler.ListVotes)
			rooms.GET("/:code/votes/statistics", voteHandler.GetStatistics)

			rooms.POST("/:code/presence", presenceHandler.Join)
			rooms.PUT("/:code/presence", presenceHandler.Heartbeat)
			rooms.GET("/:code/users", presenceHandler.ActiveUsers)
		}

		stories := api.Group("/stories")
		{
			stories.PUT("/:id", storyHandler.EditStory)
			stories.PUT("/:id/estimate", storyHandler.SetFinalEstimate)
			stories.POST("/:id/anonymize", storyHandler.AnonymizeStory)
		}
	}

	log.Printf("server listening on :%s", cfg.ServerPort)
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
