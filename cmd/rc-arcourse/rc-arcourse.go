package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/cyrilix/robocar-arcourse/pkg/config"
	"github.com/cyrilix/robocar-arcourse/pkg/controls"
	"github.com/cyrilix/robocar-arcourse/pkg/dashboard"
	"github.com/cyrilix/robocar-arcourse/pkg/events"
	"github.com/cyrilix/robocar-arcourse/pkg/game"
	"github.com/cyrilix/robocar-arcourse/pkg/gateway"
	"github.com/cyrilix/robocar-arcourse/pkg/markers"
	"github.com/cyrilix/robocar-base/cli"
	events2 "github.com/cyrilix/robocar-protobuf/go/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultClientId = "robocar-arcourse"

func main() {
	var mqttBroker, username, password, clientId string
	var topicCtrlSteering, topicCtrlThrottle string
	var topicRace, topicSteering, topicThrottle, topicFrame string
	var address, dashboardAddress, configPath string
	var deadZone float64
	var debug bool

	mqttQos := cli.InitIntFlag("MQTT_QOS", 0)
	_, mqttRetain := os.LookupEnv("MQTT_RETAIN")

	cli.InitMqttFlags(DefaultClientId, &mqttBroker, &username, &password, &clientId, &mqttQos, &mqttRetain)

	flag.StringVar(&topicCtrlSteering, "topic-steering-ctrl", os.Getenv("MQTT_TOPIC_STEERING_CTRL"), "Mqtt topic to receive turn button commands, use MQTT_TOPIC_STEERING_CTRL if args not set")
	flag.StringVar(&topicCtrlThrottle, "topic-throttle-ctrl", os.Getenv("MQTT_TOPIC_THROTTLE_CTRL"), "Mqtt topic to receive accelerate button commands, use MQTT_TOPIC_THROTTLE_CTRL if args not set")
	flag.StringVar(&topicRace, "events-topic-race", os.Getenv("MQTT_TOPIC_RACE"), "Mqtt topic to publish checkpoint and finish events, use MQTT_TOPIC_RACE if args not set")
	flag.StringVar(&topicSteering, "events-topic-steering", os.Getenv("MQTT_TOPIC_STEERING"), "Mqtt topic to publish car steering, use MQTT_TOPIC_STEERING if args not set")
	flag.StringVar(&topicThrottle, "events-topic-throttle", os.Getenv("MQTT_TOPIC_THROTTLE"), "Mqtt topic to publish car throttle, use MQTT_TOPIC_THROTTLE if args not set")
	flag.StringVar(&topicFrame, "events-topic-camera", os.Getenv("MQTT_TOPIC_CAMERA"), "Mqtt topic to publish AR camera frames, use MQTT_TOPIC_CAMERA if args not set")
	flag.StringVar(&address, "engine-address", "127.0.0.1:9091", "AR engine address")
	flag.StringVar(&dashboardAddress, "dashboard-address", os.Getenv("DASHBOARD_ADDRESS"), "Address to serve the websocket dashboard, disabled if empty")
	flag.StringVar(&configPath, "config", os.Getenv("ARCOURSE_CONFIG"), "Course yaml config, use ARCOURSE_CONFIG if args not set")
	flag.Float64Var(&deadZone, "steering-dead-zone", controls.DefaultSteeringDeadZone, "Steering values under this threshold release turn buttons")
	flag.BoolVar(&debug, "debug", false, "Debug logs")

	flag.Parse()
	if len(os.Args) <= 1 {
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := zap.NewDevelopmentConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	lgr, err := cfg.Build()
	if err != nil {
		log.Fatalf("unable to init logger: %v", err)
	}
	defer func() {
		if err := lgr.Sync(); err != nil {
			log.Printf("unable to Sync logger: %v\n", err)
		}
	}()
	zap.ReplaceGlobals(lgr)

	course, err := config.Load(configPath)
	if err != nil {
		zap.S().Fatalf("unable to load course config: %v", err)
	}

	var library *markers.Library
	if course.ReferenceImages != "" {
		library, err = markers.LoadLibrary(course.ReferenceImages, course.MaxImageSize)
		if err != nil {
			zap.S().Fatalf("unable to load reference images: %v", err)
		}
		zap.S().Infof("reference images: %v", library.Names())
	}

	client, err := cli.Connect(mqttBroker, username, password, clientId)
	if err != nil {
		zap.S().Fatalf("unable to connect to events broker: %v", err)
	}
	defer client.Disconnect(10)

	msgPub := events.NewMsgPublisher(
		events.NewMqttPublisher(client, byte(mqttQos), mqttRetain),
		events.Topics{
			Race:     topicRace,
			Steering: topicSteering,
			Throttle: topicThrottle,
			Frame:    topicFrame,
		},
		0,
	)
	msgPub.Start()
	defer msgPub.Stop()

	gtw := gateway.New(address, library, gateway.WithFramePublisher(msgPub))

	sinks := []game.SnapshotSink{msgPub}
	var dash *dashboard.Server
	if dashboardAddress != "" {
		dash = dashboard.New(dashboardAddress)
		sinks = append(sinks, dash)
	}

	g, err := game.New(gtw, gtw, gtw, game.Config{
		Vehicle:     course.Vehicle,
		SpawnerOpts: course.SpawnerOptions(),
		Listener:    msgPub,
		Sinks:       sinks,
	})
	if err != nil {
		zap.S().Fatalf("unable to init game: %v", err)
	}
	gtw.SetHandler(g)

	adapter := controls.NewCommandAdapter(g.Input(), g, float32(deadZone))
	if topicCtrlSteering != "" {
		zap.S().Info("configure mqtt route on steering command")
		client.Subscribe(topicCtrlSteering, byte(mqttQos), func(client mqtt.Client, message mqtt.Message) {
			onSteeringCommand(adapter, message)
		})
	}
	if topicCtrlThrottle != "" {
		zap.S().Info("configure mqtt route on throttle command")
		client.Subscribe(topicCtrlThrottle, byte(mqttQos), func(client mqtt.Client, message mqtt.Message) {
			onThrottleCommand(adapter, message)
		})
	}

	cli.HandleExit(g)

	if err := run(g, gtw, dash); err != nil {
		zap.S().Fatalf("unable to run service: %v", err)
	}
}

// run blocks until one of the parts stops, then stops the others
func run(g *game.Game, gtw *gateway.Gateway, dash *dashboard.Server) error {
	group, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group.Go(func() error {
		defer cancel()
		return g.Run(ctx)
	})
	group.Go(func() error {
		defer cancel()
		return gtw.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		gtw.Stop()
		return nil
	})

	if dash != nil {
		group.Go(func() error {
			defer cancel()
			return dash.ListenAndServe()
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelShutdown()
			return dash.Shutdown(shutdownCtx)
		})
	}
	return group.Wait()
}

func onSteeringCommand(c controls.SteeringController, message mqtt.Message) {
	var steeringMsg events2.SteeringMessage
	err := proto.Unmarshal(message.Payload(), &steeringMsg)
	if err != nil {
		zap.S().Errorf("unable to unmarshal steering msg: %v", err)
		return
	}
	c.WriteSteering(&steeringMsg)
}

func onThrottleCommand(c controls.ThrottleController, message mqtt.Message) {
	var throttleMsg events2.ThrottleMessage
	err := proto.Unmarshal(message.Payload(), &throttleMsg)
	if err != nil {
		zap.S().Errorf("unable to unmarshal throttle msg: %v", err)
		return
	}
	c.WriteThrottle(&throttleMsg)
}
