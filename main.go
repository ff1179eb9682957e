package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"vindr-sr/annotation"
	"vindr-sr/archive"
	"vindr-sr/constants"
	"vindr-sr/mw"
	"vindr-sr/orthanc"
	"vindr-sr/utils"

	"github.com/bsm/redislock"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger() *zap.Logger {
	env := viper.GetString("workspace.env")
	var logger *zap.Logger
	switch env {
	case "DEVELOPMENT":
		logger, _ = zap.NewDevelopment()
	default:
		logger, _ = zap.NewProduction()
	}
	return logger
}

func initConfigs(env string) {
	viper.AddConfigPath("conf")
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "__")
	viper.SetEnvKeyReplacer(replacer)

	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("elasticsearch.annotation_index_prefix", "sr_annotation")
	viper.SetDefault("sr.series_uid_policy", constants.SeriesUIDPolicyConstant)
	viper.SetDefault("minio.bucket_name", "sr-reports")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}
}

func newESClient() *elasticsearch.Client {
	var esAddresses []string
	esSingleNode := viper.GetString("elasticsearch.uri")
	if esSingleNode != "" {
		esAddresses = []string{esSingleNode}
	} else {
		esAddresses = viper.GetStringSlice("elasticsearch.uris")
	}
	utils.LogInfo("Elasticsearch nodes %v", esAddresses)

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: esAddresses,
	})
	if err != nil {
		panic(fmt.Sprintf("Cannot create ES client: %s", err))
	}
	res, err := es.Info()
	if err != nil {
		panic("Cannot connect to ES")
	}
	res.Body.Close()
	return es
}

func newArchiver(sink archive.InstanceSink, seriesUIDPolicy string, logger *zap.Logger) (*archive.Archiver, func()) {
	clientRedis := redis.NewClient(&redis.Options{
		Network:    "tcp",
		Addr:       viper.GetString("redis.uri"),
		MaxRetries: 1000,
	})
	lockerRedis := redislock.New(clientRedis)

	minioClient, err := minio.New(
		viper.GetString("minio.uri"),
		&minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_key_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.secure"),
		})
	if err != nil {
		panic("Cannot connect to MinIO")
	}
	minioStorage := archive.NewMinIOStorage(minioClient, viper.GetString("minio.bucket_name"), logger)
	if err := minioStorage.MakeBucket(context.Background()); err != nil {
		utils.LogError(err)
	}

	return archive.NewArchiver(lockerRedis, minioStorage, sink, seriesUIDPolicy, logger), func() { clientRedis.Close() }
}

// serve blocks until the server stops and reports why.
func serve(route *gin.Engine, addr string, logger *zap.Logger) error {
	if err := route.Run(addr); err != nil {
		logger.Error("Server stopped", zap.Error(err))
		return err
	}
	return nil
}

func main() {
	env := "development"
	if value, found := os.LookupEnv(constants.ENV); found {
		env = value
	}
	initConfigs(env)

	logger := newLogger()
	defer logger.Sync()
	utils.SetLogger(logger)
	utils.LogInfo("API is running in [%s] mode", env)

	route := gin.Default()
	route.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"POST", "GET"},
		AllowHeaders:     []string{"Access-Control-Allow-Headers", "Origin", "Accept", "X-Requested-With", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))

	seriesUIDPolicy := viper.GetString("sr.series_uid_policy")
	es := newESClient()
	antnStore := annotation.NewAnnotationStore(es, viper.GetString("elasticsearch.annotation_index_prefix"), logger)

	var (
		source annotation.InstanceSource
		sink   archive.InstanceSink
	)
	if uri := viper.GetString("orthanc.uri"); uri != "" {
		orthancClient := orthanc.NewOrthanC(uri, viper.GetBool("orthanc.insecure"), logger)
		source = orthancClient
		if viper.GetBool("archive.upload_to_orthanc") {
			sink = orthancClient
		}
	}

	var exports annotation.ExportQueue
	if viper.GetBool("archive.enabled") {
		archiver, closeRedis := newArchiver(sink, seriesUIDPolicy, logger)
		defer closeRedis()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go archiver.DequeueExports(ctx)
		exports = archiver
	}

	var auth *mw.Authenticator
	if viper.GetBool("auth.enabled") {
		auth = mw.NewAuthenticator(viper.GetString("keycloak.uri"), viper.GetString("keycloak.app_realm"), logger)
	}

	annotationAPI := annotation.NewAnnotationAPI(antnStore, source, exports, auth, seriesUIDPolicy, logger)
	annotationAPI.InitRoute(route, "annotations")

	// deferred cleanups must run, so no Fatal here
	if err := serve(route, "0.0.0.0:"+viper.GetString("webserver.port"), logger); err != nil {
		return
	}
}
